package screener

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"PivotTrader/internal/domain/models"
	"PivotTrader/internal/domain/repository"
	"PivotTrader/internal/services/pivots"
	"PivotTrader/pkg/cache"
	"PivotTrader/pkg/logger"
	"PivotTrader/pkg/util"
)

const (
	maxLookbackYears = 4
	momentumWindow   = 5
	minuteLookback   = 10 * time.Minute
	historyCacheKey  = "screener:volume_history"
)

// Config carries the screening thresholds.
type Config struct {
	PivotCount          int
	MinDayVolume        float64
	MinPrice            float64
	MaxPrice            float64
	MinMeanVolume       float64
	InitialProximity    float64
	ContinuousProximity float64
	MinMinuteVolume     float64
	Continuous          bool
	HistoryTTL          time.Duration
}

// volumePoint is one cached day of traded volume.
type volumePoint struct {
	Date   time.Time `json:"date"`
	Volume float64   `json:"volume"`
}

// Pipeline runs the two screening stages. Stage 1 qualifies symbols on
// historical pivot coverage and builds their pivot records; Stage 2 runs
// once per cycle and narrows Stage-1 survivors on liquidity, price and
// pivot proximity. Pivot records persist for the whole run and are
// reused across stages.
type Pipeline struct {
	log     *logger.Logger
	md      repository.MarketData
	src     repository.SymbolSource
	metrics repository.Metrics
	store   cache.BytesCache
	cfg     Config

	strict *pivots.Detector
	wide   *pivots.Detector

	records map[string]*pivots.Record
	stage1  []string
	history map[string][]volumePoint
	cycles  int
}

func NewPipeline(
	log *logger.Logger,
	md repository.MarketData,
	src repository.SymbolSource,
	metrics repository.Metrics,
	store cache.BytesCache,
	cfg Config,
	strict, wide *pivots.Detector,
) *Pipeline {
	return &Pipeline{
		log:     log,
		md:      md,
		src:     src,
		metrics: metrics,
		store:   store,
		cfg:     cfg,
		strict:  strict,
		wide:    wide,
		records: make(map[string]*pivots.Record),
	}
}

// Records exposes the per-symbol pivot records built by Stage 1.
func (p *Pipeline) Records() map[string]*pivots.Record { return p.records }

// Stage1Symbols returns the symbols that qualified in Stage 1.
func (p *Pipeline) Stage1Symbols() []string { return p.stage1 }

// RunStage1 intersects the scraped candidate list with the broker's
// tradable set and qualifies symbols on pivot coverage, fetching one
// more year of daily history per iteration. A symbol leaves the
// iteration once both pivot sides reach the target count; whatever is
// still short after four years stays qualified with partial coverage.
func (p *Pipeline) RunStage1(ctx context.Context) error {
	candidates, err := p.src.CandidateSymbols(ctx)
	if err != nil {
		return err
	}
	tradable, err := p.md.ListTradableSymbols(ctx)
	if err != nil {
		return err
	}
	symbols := intersect(candidates, tradable)
	p.log.Info("stage 1: candidates intersected",
		logger.Int("scraped", len(candidates)),
		logger.Int("eligible", len(symbols)))

	opens, err := p.md.OpeningPrices(ctx, symbols)
	if err != nil {
		return err
	}

	qualified := make(map[string]bool, len(symbols))
	unfound := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := opens[s]; ok {
			unfound = append(unfound, s)
		}
	}

	for year := 1; year <= maxLookbackYears && len(unfound) > 0; year++ {
		p.log.Info("stage 1: searching pivots",
			logger.Int("year", year),
			logger.Int("symbols", len(unfound)))

		barsBySymbol, err := p.md.DailyBars(ctx, unfound, 365*year)
		if err != nil {
			p.metrics.RecordError("stage1_fetch")
			p.log.Warn("stage 1: daily bars fetch failed", logger.Int("year", year), logger.Error(err))
			continue
		}

		var next []string
		for _, sym := range unfound {
			bars := barsBySymbol[sym]
			if len(bars) == 0 {
				p.log.Debug("stage 1: no bars, dropping symbol", logger.String("symbol", sym))
				continue
			}
			rec, ok := p.records[sym]
			det := p.wide
			if !ok {
				rec = pivots.NewRecord(sym)
				p.records[sym] = rec
				det = p.strict
			}
			det.Evaluate(rec, bars, opens[sym], year == maxLookbackYears)

			if len(rec.StrongPeaks) < p.cfg.PivotCount || len(rec.StrongValleys) < p.cfg.PivotCount {
				next = append(next, sym)
			}
			qualified[sym] = true
		}
		unfound = next
	}

	p.stage1 = make([]string, 0, len(qualified))
	for s := range qualified {
		p.stage1 = append(p.stage1, s)
	}
	sort.Strings(p.stage1)
	p.log.Info("stage 1: complete", logger.Int("qualified", len(p.stage1)))
	return nil
}

// RunStage2 runs one liquidity/proximity screening cycle over the
// Stage-1 survivors and returns a fresh ScreenedAsset set that replaces
// the previous cycle's set entirely. A cycle-level fetch failure is
// returned as an error so the caller can keep the previous set; it
// never masquerades as an empty result.
func (p *Pipeline) RunStage2(ctx context.Context) ([]models.ScreenedAsset, error) {
	if len(p.stage1) == 0 {
		return nil, nil
	}
	start := time.Now()
	defer func() {
		p.metrics.RecordCycleDuration(time.Since(start).Seconds())
	}()

	if err := p.ensureVolumeHistory(ctx); err != nil {
		p.metrics.RecordError("stage2_history")
		return nil, fmt.Errorf("stage 2: volume history: %w", err)
	}

	lastBars, err := p.md.DailyBars(ctx, p.stage1, 1)
	if err != nil {
		p.metrics.RecordError("stage2_fetch")
		return nil, fmt.Errorf("stage 2: latest day: %w", err)
	}
	trades, err := p.md.LatestTrades(ctx, p.stage1)
	if err != nil {
		p.metrics.RecordError("stage2_fetch")
		return nil, fmt.Errorf("stage 2: latest trades: %w", err)
	}

	proximity := p.cfg.InitialProximity
	if p.cfg.Continuous && p.cycles > 0 {
		proximity = p.cfg.ContinuousProximity
	}
	p.cycles++

	type nearPivot struct {
		symbol string
		action models.Action
		pivot  float64
		price  float64
	}
	var near []nearPivot

	for _, sym := range p.stage1 {
		bars := lastBars[sym]
		if len(bars) == 0 {
			continue
		}
		latestDay := bars[len(bars)-1]
		if latestDay.Volume <= p.cfg.MinDayVolume {
			continue
		}
		trade, ok := trades[sym]
		if !ok {
			continue
		}
		if trade.Price < p.cfg.MinPrice || trade.Price > p.cfg.MaxPrice {
			continue
		}
		if p.rollingMeanVolume(sym, latestDay) <= p.cfg.MinMeanVolume {
			continue
		}

		rec, ok := p.records[sym]
		if !ok || !rec.HasATR() {
			continue
		}
		tol := rec.ATR * proximity
		peak, okPeak := rec.NearestStrong(models.PivotPeak, trade.Price, tol)
		valley, okValley := rec.NearestStrong(models.PivotValley, trade.Price, tol)

		// At most one action per symbol per cycle: the closer level wins.
		switch {
		case okPeak && okValley:
			if peak.Price-trade.Price <= trade.Price-valley.Price {
				near = append(near, nearPivot{sym, models.ActionBuy, peak.Price, trade.Price})
			} else {
				near = append(near, nearPivot{sym, models.ActionSell, valley.Price, trade.Price})
			}
		case okPeak:
			near = append(near, nearPivot{sym, models.ActionBuy, peak.Price, trade.Price})
		case okValley:
			near = append(near, nearPivot{sym, models.ActionSell, valley.Price, trade.Price})
		}
	}
	if len(near) == 0 {
		p.metrics.SetScreenedAssets(0)
		return nil, nil
	}

	symbols := make([]string, 0, len(near))
	for _, n := range near {
		symbols = append(symbols, n.symbol)
	}
	minuteBars, err := p.md.MinuteBars(ctx, symbols, minuteLookback)
	if err != nil {
		p.metrics.RecordError("stage2_fetch")
		return nil, fmt.Errorf("stage 2: minute bars: %w", err)
	}

	var out []models.ScreenedAsset
	for _, n := range near {
		mb := minuteBars[n.symbol]
		if len(mb) < momentumWindow {
			continue
		}
		var meanClose float64
		for _, b := range mb[len(mb)-momentumWindow:] {
			meanClose += b.Close
		}
		meanClose /= momentumWindow

		// Momentum must agree with the action.
		if n.action == models.ActionBuy && n.price <= meanClose {
			continue
		}
		if n.action == models.ActionSell && n.price >= meanClose {
			continue
		}

		var meanVolume float64
		for _, b := range mb {
			meanVolume += b.Volume
		}
		meanVolume /= float64(len(mb))
		if meanVolume <= p.cfg.MinMinuteVolume {
			continue
		}

		out = append(out, models.ScreenedAsset{
			Symbol:     n.symbol,
			Action:     n.action,
			PivotPrice: n.pivot,
			AvgVolume:  meanVolume,
		})
	}

	p.metrics.SetScreenedAssets(len(out))
	p.log.Info("stage 2: cycle complete",
		logger.Int("near_pivot", len(near)),
		logger.Int("screened", len(out)))
	return out, nil
}

// rollingMeanVolume computes the 20-day mean from the cached history
// plus the newest day, dropping the newest day when its date is already
// cached.
func (p *Pipeline) rollingMeanVolume(sym string, latest models.Bar) float64 {
	hist := p.history[sym]
	if len(hist) == 0 {
		return 0
	}
	var sum float64
	n := 0
	for _, v := range hist {
		sum += v.Volume
		n++
	}
	if !util.SameUTCDay(hist[len(hist)-1].Date, latest.Timestamp) {
		sum += latest.Volume
		n++
	}
	return sum / float64(n)
}

// ensureVolumeHistory fetches the 30-day volume history once per run,
// keeping the most recent 19 completed days per symbol. The history is
// held through the cache layer so a same-day restart skips the refetch.
func (p *Pipeline) ensureVolumeHistory(ctx context.Context) error {
	if p.history != nil {
		return nil
	}
	if b, ok, err := p.store.GetBytes(ctx, historyCacheKey); err == nil && ok {
		var hist map[string][]volumePoint
		if err := json.Unmarshal(b, &hist); err == nil {
			p.history = hist
			return nil
		}
	}

	barsBySymbol, err := p.md.DailyBars(ctx, p.stage1, 30)
	if err != nil {
		return err
	}
	hist := make(map[string][]volumePoint, len(barsBySymbol))
	now := time.Now().UTC()
	for sym, bars := range barsBySymbol {
		if len(bars) == 0 {
			continue
		}
		if len(bars) > 20 {
			bars = bars[len(bars)-20:]
		}
		// Keep 19 completed days: drop today's still-forming bar when
		// present, otherwise drop the oldest.
		if util.SameUTCDay(bars[len(bars)-1].Timestamp, now) {
			bars = bars[:len(bars)-1]
		} else if len(bars) == 20 {
			bars = bars[1:]
		}
		points := make([]volumePoint, 0, len(bars))
		for _, b := range bars {
			points = append(points, volumePoint{Date: b.Timestamp, Volume: b.Volume})
		}
		hist[sym] = points
	}
	p.history = hist

	if b, err := json.Marshal(hist); err == nil {
		if err := p.store.SetBytes(ctx, historyCacheKey, b, p.cfg.HistoryTTL); err != nil {
			p.log.Debug("stage 2: history cache store failed", logger.Error(err))
		}
	}
	return nil
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, s := range b {
		set[s] = true
	}
	var out []string
	seen := make(map[string]bool, len(a))
	for _, s := range a {
		if set[s] && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
