package finviz

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	phttp "PivotTrader/pkg/http"
	"PivotTrader/pkg/logger"
)

const (
	pageSize  = 20
	userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

// Config carries the screener settings. ScreenerURL is the full
// finviz screener URL with the filter set baked into its query string.
type Config struct {
	ScreenerURL string
	Timeout     time.Duration
}

// Scraper pulls candidate symbols from the finviz screener. It
// implements repository.SymbolSource.
type Scraper struct {
	log  *logger.Logger
	http *phttp.Client
	cfg  Config
}

func NewScraper(log *logger.Logger, cfg Config) *Scraper {
	return &Scraper{
		log:  log,
		http: phttp.NewClient(phttp.WithTimeout(cfg.Timeout)),
		cfg:  cfg,
	}
}

// CandidateSymbols walks every result page of the configured screen
// and returns the tickers in screen order.
func (s *Scraper) CandidateSymbols(ctx context.Context) ([]string, error) {
	doc, err := s.fetchPage(ctx, 1)
	if err != nil {
		return nil, err
	}
	total, err := parseTotal(doc)
	if err != nil {
		return nil, err
	}

	symbols := parseTickers(doc)
	for offset := pageSize + 1; offset <= total; offset += pageSize {
		page, err := s.fetchPage(ctx, offset)
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, parseTickers(page)...)
	}

	s.log.Info("screen scraped",
		logger.Int("total", total),
		logger.Int("symbols", len(symbols)))
	return symbols, nil
}

// fetchPage loads the screener page starting at the given 1-based row.
func (s *Scraper) fetchPage(ctx context.Context, row int) (*goquery.Document, error) {
	u := s.cfg.ScreenerURL
	if row > 1 {
		u = fmt.Sprintf("%s&r=%d", u, row)
	}
	body, err := s.http.SendRequest(ctx, &phttp.RequestOptions{
		Method:  phttp.MethodGet,
		URL:     u,
		Headers: map[string]string{"User-Agent": userAgent},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch screen page at row %d: %w", row, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse screen page: %w", err)
	}
	return doc, nil
}

// parseTotal reads the result count from the "#1 / 234 Total" header.
func parseTotal(doc *goquery.Document) (int, error) {
	text := strings.TrimSpace(doc.Find("#screener-total").First().Text())
	if text == "" {
		return 0, fmt.Errorf("screen result count not found")
	}
	if i := strings.Index(text, "/"); i >= 0 {
		text = text[i+1:]
	}
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "Total"))
	total, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("parse screen result count %q: %w", text, err)
	}
	return total, nil
}

func parseTickers(doc *goquery.Document) []string {
	var out []string
	doc.Find("a.screener-link-primary").Each(func(_ int, sel *goquery.Selection) {
		if t := strings.TrimSpace(sel.Text()); t != "" {
			out = append(out, t)
		}
	})
	return out
}
