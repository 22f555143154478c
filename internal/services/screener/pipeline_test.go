package screener

import (
	"context"
	"errors"
	"testing"
	"time"

	"PivotTrader/internal/domain/models"
	"PivotTrader/internal/services/pivots"
	"PivotTrader/pkg/cache"
	"PivotTrader/pkg/logger"
	"PivotTrader/pkg/metrics"
)

type fakeSource struct {
	symbols []string
}

func (f *fakeSource) CandidateSymbols(_ context.Context) ([]string, error) {
	return f.symbols, nil
}

type fakeMarket struct {
	tradable []string
	daily    map[int]map[string][]models.Bar // keyed by lookback days
	opens    map[string]float64
	trades   map[string]models.LatestTrade
	minute   map[string][]models.Bar

	dailyErr  error
	tradesErr error

	dailyCalls []int
}

func (f *fakeMarket) ListTradableSymbols(_ context.Context) ([]string, error) {
	return f.tradable, nil
}

func (f *fakeMarket) DailyBars(_ context.Context, _ []string, lookbackDays int) (map[string][]models.Bar, error) {
	f.dailyCalls = append(f.dailyCalls, lookbackDays)
	if f.dailyErr != nil {
		return nil, f.dailyErr
	}
	return f.daily[lookbackDays], nil
}

func (f *fakeMarket) MinuteBars(_ context.Context, _ []string, _ time.Duration) (map[string][]models.Bar, error) {
	return f.minute, nil
}

func (f *fakeMarket) OpeningPrices(_ context.Context, _ []string) (map[string]float64, error) {
	return f.opens, nil
}

func (f *fakeMarket) LatestTrades(_ context.Context, _ []string) (map[string]models.LatestTrade, error) {
	if f.tradesErr != nil {
		return nil, f.tradesErr
	}
	return f.trades, nil
}

func (f *fakeMarket) NextClose(_ context.Context) (time.Time, error) {
	return time.Time{}, nil
}

func testDay(i int) time.Time {
	return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * 24 * time.Hour)
}

func flatBars(n int, price, rng float64) []models.Bar {
	bars := make([]models.Bar, n)
	for i := range bars {
		bars[i] = models.Bar{
			Timestamp: testDay(i),
			Open:      price,
			High:      price + rng/2,
			Low:       price - rng/2,
			Close:     price,
			Volume:    1000,
		}
	}
	return bars
}

func newTestPipeline(md *fakeMarket, src *fakeSource, cfg Config) *Pipeline {
	return NewPipeline(
		logger.Discard(),
		md,
		src,
		metrics.Nop{},
		cache.NewMemory(),
		cfg,
		pivots.NewDetector(cfg.PivotCount, 3.0, 0.1),
		pivots.NewDetector(cfg.PivotCount, 3.0, 0.5),
	)
}

func minuteBars(n int, close, volume float64) []models.Bar {
	bars := make([]models.Bar, n)
	base := time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = models.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Close:     close,
			Volume:    volume,
		}
	}
	return bars
}

func seedRecord(p *Pipeline, sym string, atr float64, peaks, valleys []float64) {
	rec := pivots.NewRecord(sym)
	rec.SetATR(atr)
	for _, price := range peaks {
		rec.StrongPeaks = append(rec.StrongPeaks, models.Pivot{
			Price: price, Kind: models.PivotPeak, Strength: models.PivotStrong,
		})
	}
	for _, price := range valleys {
		rec.StrongValleys = append(rec.StrongValleys, models.Pivot{
			Price: price, Kind: models.PivotValley, Strength: models.PivotStrong,
		})
	}
	p.records[sym] = rec
}

func TestStage1QualifiesOnPivotCoverage(t *testing.T) {
	bars := flatBars(30, 100, 2)
	bars[5].High = 110 // dominant peak
	bars[12].Low = 90  // dominant valley

	md := &fakeMarket{
		tradable: []string{"AAA", "CCC"},
		opens:    map[string]float64{"AAA": 100, "CCC": 100},
		daily: map[int]map[string][]models.Bar{
			365: {"AAA": bars},
		},
	}
	src := &fakeSource{symbols: []string{"AAA", "BBB", "CCC"}}
	p := newTestPipeline(md, src, Config{PivotCount: 1})

	if err := p.RunStage1(context.Background()); err != nil {
		t.Fatalf("RunStage1: %v", err)
	}

	got := p.Stage1Symbols()
	if len(got) != 1 || got[0] != "AAA" {
		t.Fatalf("stage1 symbols = %v, want [AAA]", got)
	}
	if len(md.dailyCalls) != 1 {
		t.Fatalf("daily bar fetches = %v, want one year-1 fetch", md.dailyCalls)
	}
	rec := p.Records()["AAA"]
	if len(rec.StrongPeaks) != 1 || rec.StrongPeaks[0].Price != 110 {
		t.Fatalf("strong peaks = %+v, want one at 110", rec.StrongPeaks)
	}
	if len(rec.StrongValleys) != 1 || rec.StrongValleys[0].Price != 90 {
		t.Fatalf("strong valleys = %+v, want one at 90", rec.StrongValleys)
	}
}

func TestStage1KeepsPartialCoverage(t *testing.T) {
	// Only a peak exists, so the valley side never fills: the symbol
	// must still qualify after the last lookback extension.
	bars := flatBars(30, 100, 2)
	bars[5].High = 110

	daily := make(map[int]map[string][]models.Bar)
	for year := 1; year <= 4; year++ {
		daily[365*year] = map[string][]models.Bar{"DDD": bars}
	}
	md := &fakeMarket{
		tradable: []string{"DDD"},
		opens:    map[string]float64{"DDD": 100},
		daily:    daily,
	}
	p := newTestPipeline(md, &fakeSource{symbols: []string{"DDD"}}, Config{PivotCount: 1})

	if err := p.RunStage1(context.Background()); err != nil {
		t.Fatalf("RunStage1: %v", err)
	}
	if got := p.Stage1Symbols(); len(got) != 1 || got[0] != "DDD" {
		t.Fatalf("stage1 symbols = %v, want [DDD]", got)
	}
	want := []int{365, 730, 1095, 1460}
	if len(md.dailyCalls) != len(want) {
		t.Fatalf("daily bar fetches = %v, want %v", md.dailyCalls, want)
	}
	for i, lookback := range want {
		if md.dailyCalls[i] != lookback {
			t.Fatalf("daily bar fetches = %v, want %v", md.dailyCalls, want)
		}
	}
}

func TestStage2ScreensOnLiquidityAndProximity(t *testing.T) {
	today := testDay(40)
	lastDay := func(volume float64) []models.Bar {
		return []models.Bar{{Timestamp: today, Close: 109.9, Volume: volume}}
	}
	md := &fakeMarket{
		daily: map[int]map[string][]models.Bar{
			1: {
				"AAA":    lastDay(60000),
				"LOWVOL": lastDay(10000),
				"FAR":    lastDay(60000),
				"CHEAP":  lastDay(60000),
			},
		},
		trades: map[string]models.LatestTrade{
			"AAA":    {Price: 109.9, Timestamp: today},
			"LOWVOL": {Price: 109.9, Timestamp: today},
			"FAR":    {Price: 109.9, Timestamp: today},
			"CHEAP":  {Price: 12.5, Timestamp: today},
		},
		minute: map[string][]models.Bar{
			"AAA": minuteBars(10, 109, 2000),
		},
	}
	cfg := Config{
		PivotCount:       1,
		MinDayVolume:     50000,
		MinPrice:         20,
		MaxPrice:         500,
		MinMeanVolume:    30000,
		InitialProximity: 0.30,
		MinMinuteVolume:  1000,
	}
	p := newTestPipeline(md, &fakeSource{}, cfg)
	p.stage1 = []string{"AAA", "CHEAP", "LOWVOL", "FAR"}
	seedRecord(p, "AAA", 2, []float64{110}, nil)
	seedRecord(p, "LOWVOL", 2, []float64{110}, nil)
	seedRecord(p, "FAR", 2, []float64{200}, nil)
	seedRecord(p, "CHEAP", 2, []float64{12.6}, nil)
	p.history = map[string][]volumePoint{
		"AAA":    {{Date: testDay(39), Volume: 40000}},
		"LOWVOL": {{Date: testDay(39), Volume: 40000}},
		"FAR":    {{Date: testDay(39), Volume: 40000}},
		"CHEAP":  {{Date: testDay(39), Volume: 40000}},
	}

	assets, err := p.RunStage2(context.Background())
	if err != nil {
		t.Fatalf("RunStage2: %v", err)
	}
	if len(assets) != 1 {
		t.Fatalf("screened assets = %+v, want exactly one", assets)
	}
	got := assets[0]
	if got.Symbol != "AAA" || got.Action != models.ActionBuy {
		t.Fatalf("asset = %+v, want buy AAA", got)
	}
	if got.PivotPrice != 110 || got.AvgVolume != 2000 {
		t.Fatalf("asset = %+v, want pivot 110 avg volume 2000", got)
	}
}

func TestStage2FetchFailureIsAnError(t *testing.T) {
	// A broker hiccup must surface as an error so the caller keeps the
	// previous cycle's set, never as a legitimate empty result.
	md := &fakeMarket{tradesErr: errors.New("gateway timeout")}
	cfg := Config{
		PivotCount:       1,
		MinDayVolume:     50000,
		MinPrice:         20,
		MaxPrice:         500,
		MinMeanVolume:    30000,
		InitialProximity: 0.30,
		MinMinuteVolume:  1000,
	}
	p := newTestPipeline(md, &fakeSource{}, cfg)
	p.stage1 = []string{"AAA"}
	seedRecord(p, "AAA", 2, []float64{110}, nil)
	p.history = map[string][]volumePoint{
		"AAA": {{Date: testDay(39), Volume: 40000}},
	}

	if _, err := p.RunStage2(context.Background()); err == nil {
		t.Fatal("RunStage2 must fail when the latest-trade fetch fails")
	}

	md.tradesErr = nil
	md.dailyErr = errors.New("gateway timeout")
	if _, err := p.RunStage2(context.Background()); err == nil {
		t.Fatal("RunStage2 must fail when the daily-bar fetch fails")
	}
}

func TestStage2MomentumGateRejects(t *testing.T) {
	today := testDay(40)
	md := &fakeMarket{
		daily: map[int]map[string][]models.Bar{
			1: {"AAA": {{Timestamp: today, Close: 109.9, Volume: 60000}}},
		},
		trades: map[string]models.LatestTrade{"AAA": {Price: 109.9, Timestamp: today}},
		// Price sits below the recent mean close, so a buy has no momentum.
		minute: map[string][]models.Bar{"AAA": minuteBars(10, 111, 2000)},
	}
	cfg := Config{
		PivotCount:       1,
		MinDayVolume:     50000,
		MinPrice:         20,
		MaxPrice:         500,
		MinMeanVolume:    30000,
		InitialProximity: 0.30,
		MinMinuteVolume:  1000,
	}
	p := newTestPipeline(md, &fakeSource{}, cfg)
	p.stage1 = []string{"AAA"}
	seedRecord(p, "AAA", 2, []float64{110}, nil)
	p.history = map[string][]volumePoint{
		"AAA": {{Date: testDay(39), Volume: 40000}},
	}

	assets, err := p.RunStage2(context.Background())
	if err != nil {
		t.Fatalf("RunStage2: %v", err)
	}
	if len(assets) != 0 {
		t.Fatalf("screened assets = %+v, want none", assets)
	}
}

func TestStage2ChoosesCloserPivot(t *testing.T) {
	today := testDay(40)
	md := &fakeMarket{
		daily: map[int]map[string][]models.Bar{
			1: {"AAA": {{Timestamp: today, Close: 100, Volume: 60000}}},
		},
		trades: map[string]models.LatestTrade{"AAA": {Price: 100, Timestamp: today}},
		minute: map[string][]models.Bar{"AAA": minuteBars(10, 100.5, 2000)},
	}
	cfg := Config{
		PivotCount:       1,
		MinDayVolume:     50000,
		MinPrice:         20,
		MaxPrice:         500,
		MinMeanVolume:    30000,
		InitialProximity: 0.30,
		MinMinuteVolume:  1000,
	}
	p := newTestPipeline(md, &fakeSource{}, cfg)
	p.stage1 = []string{"AAA"}
	// Both sides are in range; the valley is closer, so the symbol
	// screens as a short at the valley level.
	seedRecord(p, "AAA", 1, []float64{100.2}, []float64{99.9})
	p.history = map[string][]volumePoint{
		"AAA": {{Date: testDay(39), Volume: 40000}},
	}

	assets, err := p.RunStage2(context.Background())
	if err != nil {
		t.Fatalf("RunStage2: %v", err)
	}
	if len(assets) != 1 {
		t.Fatalf("screened assets = %+v, want exactly one", assets)
	}
	got := assets[0]
	if got.Action != models.ActionSell || got.PivotPrice != 99.9 {
		t.Fatalf("asset = %+v, want sell at 99.9", got)
	}
}

func TestStage2WidensProximityInContinuousMode(t *testing.T) {
	today := testDay(40)
	md := &fakeMarket{
		daily: map[int]map[string][]models.Bar{
			1: {"AAA": {{Timestamp: today, Close: 110, Volume: 60000}}},
		},
		trades: map[string]models.LatestTrade{"AAA": {Price: 110, Timestamp: today}},
		minute: map[string][]models.Bar{"AAA": minuteBars(10, 109, 2000)},
	}
	cfg := Config{
		PivotCount:          1,
		MinDayVolume:        50000,
		MinPrice:            20,
		MaxPrice:            500,
		MinMeanVolume:       30000,
		InitialProximity:    0.30,
		ContinuousProximity: 0.50,
		MinMinuteVolume:     1000,
		Continuous:          true,
	}
	p := newTestPipeline(md, &fakeSource{}, cfg)
	p.stage1 = []string{"AAA"}
	// 0.8 away from the pivot: outside 0.30*ATR but inside 0.50*ATR.
	seedRecord(p, "AAA", 2, []float64{110.8}, nil)
	p.history = map[string][]volumePoint{
		"AAA": {{Date: testDay(39), Volume: 40000}},
	}

	first, err := p.RunStage2(context.Background())
	if err != nil {
		t.Fatalf("RunStage2 first cycle: %v", err)
	}
	if len(first) != 0 {
		t.Fatalf("first cycle assets = %+v, want none", first)
	}
	second, err := p.RunStage2(context.Background())
	if err != nil {
		t.Fatalf("RunStage2 second cycle: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("second cycle assets = %+v, want one", second)
	}
}
