package alpaca

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"PivotTrader/internal/domain/models"
	"PivotTrader/internal/domain/repository"
	phttp "PivotTrader/pkg/http"
	"PivotTrader/pkg/logger"
	"PivotTrader/pkg/ratelimit"
	"PivotTrader/pkg/retry"
	"PivotTrader/pkg/util"
)

const (
	symbolsPerRequest = 200
	barPageLimit      = 10000
	retryDelay        = 500 * time.Millisecond

	// data-plane request cap, per minute
	requestsPerMinute = 200
)

// Config carries the broker API settings.
type Config struct {
	KeyID      string
	SecretKey  string
	Feed       string
	TradingURL string
	DataURL    string
	Timeout    time.Duration
	MaxRetries int
}

// Client talks to the Alpaca trading and market-data REST APIs. It
// implements repository.MarketData.
type Client struct {
	log   *logger.Logger
	http  *phttp.Client
	cfg   Config
	retry retry.Policy
	limit *ratelimit.Limiter
}

func NewClient(log *logger.Logger, cfg Config) *Client {
	return &Client{
		log:   log,
		http:  phttp.NewClient(phttp.WithTimeout(cfg.Timeout)),
		cfg:   cfg,
		retry: retry.Policy{MaxAttempts: cfg.MaxRetries, Delay: retryDelay},
		limit: ratelimit.New(requestsPerMinute, requestsPerMinute/60.0),
	}
}

func (c *Client) headers() map[string]string {
	return map[string]string{
		"APCA-API-KEY-ID":     c.cfg.KeyID,
		"APCA-API-SECRET-KEY": c.cfg.SecretKey,
	}
}

func (c *Client) get(ctx context.Context, rawURL string, params url.Values, dest interface{}) error {
	return c.retry.Do(ctx, func(ctx context.Context) error {
		if err := c.limit.Wait(ctx); err != nil {
			return err
		}
		return c.http.SendAndParse(ctx, &phttp.RequestOptions{
			Method:      phttp.MethodGet,
			URL:         rawURL,
			Headers:     c.headers(),
			QueryParams: params,
		}, dest)
	})
}

type asset struct {
	Symbol       string `json:"symbol"`
	Status       string `json:"status"`
	Tradable     bool   `json:"tradable"`
	Shortable    bool   `json:"shortable"`
	EasyToBorrow bool   `json:"easy_to_borrow"`
}

// ListTradableSymbols returns active US equities that can be traded on
// both sides. Shorting needs shortable, easy-to-borrow stock.
func (c *Client) ListTradableSymbols(ctx context.Context) ([]string, error) {
	params := url.Values{}
	params.Set("status", "active")
	params.Set("asset_class", "us_equity")

	var assets []asset
	if err := c.get(ctx, c.cfg.TradingURL+"/v2/assets", params, &assets); err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	symbols := make([]string, 0, len(assets))
	for _, a := range assets {
		if a.Tradable && a.Shortable && a.EasyToBorrow {
			symbols = append(symbols, a.Symbol)
		}
	}
	c.log.Debug("tradable symbols listed", logger.Int("count", len(symbols)))
	return symbols, nil
}

type apiBar struct {
	Timestamp time.Time `json:"t"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    float64   `json:"v"`
}

type barsResponse struct {
	Bars          map[string][]apiBar `json:"bars"`
	NextPageToken *string             `json:"next_page_token"`
}

func (b apiBar) toModel() models.Bar {
	return models.Bar{
		Timestamp: b.Timestamp,
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    b.Volume,
	}
}

func (c *Client) bars(ctx context.Context, symbols []string, timeframe string, start time.Time) (map[string][]models.Bar, error) {
	out := make(map[string][]models.Bar, len(symbols))
	for _, batch := range chunk(symbols, symbolsPerRequest) {
		pageToken := ""
		for {
			params := url.Values{}
			params.Set("symbols", strings.Join(batch, ","))
			params.Set("timeframe", timeframe)
			params.Set("start", start.Format(time.RFC3339))
			params.Set("limit", fmt.Sprintf("%d", barPageLimit))
			params.Set("adjustment", "split")
			params.Set("feed", c.cfg.Feed)
			if pageToken != "" {
				params.Set("page_token", pageToken)
			}

			var resp barsResponse
			if err := c.get(ctx, c.cfg.DataURL+"/v2/stocks/bars", params, &resp); err != nil {
				return nil, fmt.Errorf("fetch %s bars: %w", timeframe, err)
			}
			for sym, bars := range resp.Bars {
				for _, b := range bars {
					out[sym] = append(out[sym], b.toModel())
				}
			}
			if resp.NextPageToken == nil || *resp.NextPageToken == "" {
				break
			}
			pageToken = *resp.NextPageToken
		}
	}
	return out, nil
}

func (c *Client) DailyBars(ctx context.Context, symbols []string, lookbackDays int) (map[string][]models.Bar, error) {
	start := time.Now().UTC().AddDate(0, 0, -lookbackDays)
	return c.bars(ctx, symbols, "1Day", start)
}

// MinuteBars returns the most recent minute bars covering the lookback
// window. The request starts at the previous trading day so the window
// stays populated right after the open and across weekends; the result
// is trimmed to the newest bars that fit the window.
func (c *Client) MinuteBars(ctx context.Context, symbols []string, lookback time.Duration) (map[string][]models.Bar, error) {
	now := time.Now().UTC()
	start := util.PreviousTradingDay(now.Truncate(24 * time.Hour))
	bars, err := c.bars(ctx, symbols, "1Min", start)
	if err != nil {
		return nil, err
	}
	n := int(lookback / time.Minute)
	for sym, bb := range bars {
		if n > 0 && len(bb) > n {
			bars[sym] = bb[len(bb)-n:]
		}
	}
	return bars, nil
}

// OpeningPrices returns today's opening price per symbol. Before the
// open the previous trading day's close stands in, so early screening
// still has a reference price.
func (c *Client) OpeningPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	now := time.Now().UTC()
	start := util.PreviousTradingDay(now.Truncate(24 * time.Hour))
	bars, err := c.bars(ctx, symbols, "1Day", start)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(bars))
	for sym, bb := range bars {
		if len(bb) == 0 {
			continue
		}
		last := bb[len(bb)-1]
		if util.SameUTCDay(last.Timestamp, now) {
			out[sym] = last.Open
		} else {
			out[sym] = last.Close
		}
	}
	return out, nil
}

type latestTradesResponse struct {
	Trades map[string]struct {
		Timestamp time.Time `json:"t"`
		Price     float64   `json:"p"`
		Size      float64   `json:"s"`
	} `json:"trades"`
}

func (c *Client) LatestTrades(ctx context.Context, symbols []string) (map[string]models.LatestTrade, error) {
	out := make(map[string]models.LatestTrade, len(symbols))
	for _, batch := range chunk(symbols, symbolsPerRequest) {
		params := url.Values{}
		params.Set("symbols", strings.Join(batch, ","))
		params.Set("feed", c.cfg.Feed)

		var resp latestTradesResponse
		if err := c.get(ctx, c.cfg.DataURL+"/v2/stocks/trades/latest", params, &resp); err != nil {
			return nil, fmt.Errorf("fetch latest trades: %w", err)
		}
		for sym, t := range resp.Trades {
			out[sym] = models.LatestTrade{Price: t.Price, Timestamp: t.Timestamp}
		}
	}
	return out, nil
}

type clockResponse struct {
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

// NextClose returns the end of the current trading session. Calling it
// while the market is closed is an error: a session cannot start then.
func (c *Client) NextClose(ctx context.Context) (time.Time, error) {
	var resp clockResponse
	if err := c.get(ctx, c.cfg.TradingURL+"/v2/clock", nil, &resp); err != nil {
		return time.Time{}, fmt.Errorf("fetch clock: %w", err)
	}
	if !resp.IsOpen {
		return time.Time{}, repository.ErrMarketClosed
	}
	return resp.NextClose, nil
}

func chunk(symbols []string, size int) [][]string {
	var out [][]string
	for len(symbols) > size {
		out = append(out, symbols[:size])
		symbols = symbols[size:]
	}
	if len(symbols) > 0 {
		out = append(out, symbols)
	}
	return out
}
