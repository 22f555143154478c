package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PivotTrader/internal/domain/models"
	"PivotTrader/pkg/logger"
	"PivotTrader/pkg/metrics"
	"PivotTrader/pkg/retry"
)

type fakeExecutor struct {
	mu        sync.Mutex
	orders    []models.Order
	positions []models.Position
	closed    []models.Position
	closedAll bool

	submitErrs []error // consumed per call, nil means success
	result     models.OrderResult
}

func (f *fakeExecutor) SubmitOrder(_ context.Context, o models.Order) (models.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, o)
	if len(f.submitErrs) > 0 {
		err := f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
		if err != nil {
			return models.OrderResult{}, err
		}
	}
	return f.result, nil
}

func (f *fakeExecutor) OpenPositions(_ context.Context) ([]models.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.positions, nil
}

func (f *fakeExecutor) ClosePosition(_ context.Context, p models.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, p)
	return nil
}

func (f *fakeExecutor) CloseAllPositions(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closedAll = true
	return nil
}

func (f *fakeExecutor) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

func newTestEngine(exec *fakeExecutor, traded *TradedSet) *DecisionEngine {
	return NewDecisionEngine(
		logger.Discard(),
		exec,
		metrics.Nop{},
		traded,
		retry.Policy{MaxAttempts: 2, Delay: time.Millisecond},
		EngineConfig{MinuteVolumeGate: 5000, VolumeMultiple: 5, OrderQty: 100},
	)
}

func event(symbol string, price, size float64, ts time.Time) models.TradeEvent {
	return models.TradeEvent{Symbol: symbol, Price: price, Size: size, Timestamp: ts}
}

func TestEngineBuyTriggerFiresOnce(t *testing.T) {
	exec := &fakeExecutor{result: models.OrderResult{Status: models.StatusFilled}}
	traded := NewTradedSet()
	e := newTestEngine(exec, traded)
	e.replaceWatch([]models.ScreenedAsset{
		{Symbol: "AAPL", Action: models.ActionBuy, PivotPrice: 100, AvgVolume: 1000},
	})

	ts := time.Date(2026, 8, 28, 15, 30, 10, 0, time.UTC)
	ctx := context.Background()

	// Below both volume thresholds: no order yet.
	e.handle(ctx, event("AAPL", 100.5, 3000, ts))
	if got := exec.orderCount(); got != 0 {
		t.Fatalf("orders after 3000 shares = %d, want 0", got)
	}

	// Cumulative 6000 shares in the minute clears the gate and the
	// 5x average, and the price is above the pivot.
	e.handle(ctx, event("AAPL", 100.5, 3000, ts.Add(5*time.Second)))
	if got := exec.orderCount(); got != 1 {
		t.Fatalf("orders after trigger = %d, want 1", got)
	}
	o := exec.orders[0]
	if o.Side != models.SideBuy || o.Type != models.TypeMarket || o.Quantity != 100 {
		t.Fatalf("order = %+v, want 100-share market buy", o)
	}
	if !traded.Contains("AAPL") {
		t.Fatal("symbol not marked traded after submission")
	}

	// Further events for the symbol are ignored for the rest of the run.
	e.handle(ctx, event("AAPL", 101, 9000, ts.Add(10*time.Second)))
	if got := exec.orderCount(); got != 1 {
		t.Fatalf("orders after repeat trigger = %d, want still 1", got)
	}
}

func TestEngineSellTrigger(t *testing.T) {
	exec := &fakeExecutor{result: models.OrderResult{Status: models.StatusFilled}}
	e := newTestEngine(exec, NewTradedSet())
	e.replaceWatch([]models.ScreenedAsset{
		{Symbol: "MSFT", Action: models.ActionSell, PivotPrice: 200, AvgVolume: 1000},
	})

	ts := time.Date(2026, 8, 28, 15, 30, 0, 0, time.UTC)
	e.handle(context.Background(), event("MSFT", 199.5, 6000, ts))
	if got := exec.orderCount(); got != 1 {
		t.Fatalf("orders = %d, want 1", got)
	}
	if exec.orders[0].Side != models.SideSell {
		t.Fatalf("order side = %q, want sell", exec.orders[0].Side)
	}
}

func TestEngineNoOrderWithoutPivotCross(t *testing.T) {
	exec := &fakeExecutor{result: models.OrderResult{Status: models.StatusFilled}}
	e := newTestEngine(exec, NewTradedSet())
	e.replaceWatch([]models.ScreenedAsset{
		{Symbol: "AAPL", Action: models.ActionBuy, PivotPrice: 100, AvgVolume: 1000},
	})

	// Heavy volume but the price never clears the pivot.
	ts := time.Date(2026, 8, 28, 15, 30, 0, 0, time.UTC)
	e.handle(context.Background(), event("AAPL", 99.9, 20000, ts))
	if got := exec.orderCount(); got != 0 {
		t.Fatalf("orders = %d, want 0", got)
	}
}

func TestEngineMinuteRolloverResetsVolume(t *testing.T) {
	exec := &fakeExecutor{result: models.OrderResult{Status: models.StatusFilled}}
	e := newTestEngine(exec, NewTradedSet())
	e.replaceWatch([]models.ScreenedAsset{
		{Symbol: "AAPL", Action: models.ActionBuy, PivotPrice: 100, AvgVolume: 1000},
	})

	ctx := context.Background()
	ts := time.Date(2026, 8, 28, 15, 30, 50, 0, time.UTC)
	e.handle(ctx, event("AAPL", 100.5, 4000, ts))
	// Next minute: the accumulator starts over, so 4000 + 2000 never
	// combine across the boundary.
	e.handle(ctx, event("AAPL", 100.5, 2000, ts.Add(20*time.Second)))
	if got := exec.orderCount(); got != 0 {
		t.Fatalf("orders across minute boundary = %d, want 0", got)
	}

	// Inside one minute the same sizes do combine.
	ts2 := ts.Add(2 * time.Minute)
	e.handle(ctx, event("AAPL", 100.5, 4000, ts2))
	e.handle(ctx, event("AAPL", 100.5, 2000, ts2.Add(5*time.Second)))
	if got := exec.orderCount(); got != 1 {
		t.Fatalf("orders within one minute = %d, want 1", got)
	}
}

func TestEngineWatchUpdateKeepsMinuteVolume(t *testing.T) {
	exec := &fakeExecutor{result: models.OrderResult{Status: models.StatusFilled}}
	e := newTestEngine(exec, NewTradedSet())
	asset := models.ScreenedAsset{Symbol: "AAPL", Action: models.ActionBuy, PivotPrice: 100, AvgVolume: 1000}
	e.replaceWatch([]models.ScreenedAsset{asset})

	ctx := context.Background()
	ts := time.Date(2026, 8, 28, 15, 30, 10, 0, time.UTC)
	e.handle(ctx, event("AAPL", 100.5, 3000, ts))

	// A screening cycle lands mid-minute with the same set: the 3000
	// shares already counted must survive the swap.
	e.replaceWatch([]models.ScreenedAsset{asset})
	e.handle(ctx, event("AAPL", 100.5, 3000, ts.Add(10*time.Second)))
	if got := exec.orderCount(); got != 1 {
		t.Fatalf("orders after 6000 shares in one minute = %d, want 1", got)
	}
}

func TestEngineVolumeGateBelowAbsoluteMinimum(t *testing.T) {
	exec := &fakeExecutor{result: models.OrderResult{Status: models.StatusFilled}}
	e := newTestEngine(exec, NewTradedSet())
	// 5x the average is only 500 shares, well under the absolute gate.
	e.replaceWatch([]models.ScreenedAsset{
		{Symbol: "THIN", Action: models.ActionBuy, PivotPrice: 100, AvgVolume: 100},
	})

	ts := time.Date(2026, 8, 28, 15, 30, 0, 0, time.UTC)
	e.handle(context.Background(), event("THIN", 100.5, 2000, ts))
	if got := exec.orderCount(); got != 0 {
		t.Fatalf("orders = %d, want 0: absolute gate not met", got)
	}
}

func TestEngineRetriesFailedSubmission(t *testing.T) {
	exec := &fakeExecutor{
		submitErrs: []error{errors.New("timeout"), nil},
		result:     models.OrderResult{Status: models.StatusFilled},
	}
	traded := NewTradedSet()
	e := newTestEngine(exec, traded)
	e.replaceWatch([]models.ScreenedAsset{
		{Symbol: "AAPL", Action: models.ActionBuy, PivotPrice: 100, AvgVolume: 1000},
	})

	ts := time.Date(2026, 8, 28, 15, 30, 0, 0, time.UTC)
	e.handle(context.Background(), event("AAPL", 100.5, 6000, ts))
	if got := exec.orderCount(); got != 2 {
		t.Fatalf("submit attempts = %d, want 2 (one retry)", got)
	}
	if !traded.Contains("AAPL") {
		t.Fatal("symbol must be marked traded after the retry succeeds")
	}
}

func TestEngineExhaustedRetriesLeaveSymbolEligible(t *testing.T) {
	exec := &fakeExecutor{
		submitErrs: []error{errors.New("timeout"), errors.New("timeout"), nil},
		result:     models.OrderResult{Status: models.StatusFilled},
	}
	traded := NewTradedSet()
	e := newTestEngine(exec, traded)
	asset := models.ScreenedAsset{Symbol: "AAPL", Action: models.ActionBuy, PivotPrice: 100, AvgVolume: 1000}
	e.replaceWatch([]models.ScreenedAsset{asset})

	ctx := context.Background()
	ts := time.Date(2026, 8, 28, 15, 30, 0, 0, time.UTC)
	e.handle(ctx, event("AAPL", 100.5, 6000, ts))
	if got := exec.orderCount(); got != 2 {
		t.Fatalf("submit attempts = %d, want 2", got)
	}
	if traded.Contains("AAPL") {
		t.Fatal("symbol must stay eligible after exhausted retries")
	}

	// The next screening cycle re-arms the symbol and the trigger may
	// fire again.
	e.replaceWatch([]models.ScreenedAsset{asset})
	e.handle(ctx, event("AAPL", 100.5, 6000, ts.Add(2*time.Minute)))
	if got := exec.orderCount(); got != 3 {
		t.Fatalf("submit attempts after re-arm = %d, want 3", got)
	}
	if !traded.Contains("AAPL") {
		t.Fatal("symbol must be marked traded after the later success")
	}
}

func TestEngineRejectedOrderNotRetried(t *testing.T) {
	exec := &fakeExecutor{result: models.OrderResult{Status: models.StatusRejected}}
	traded := NewTradedSet()
	e := newTestEngine(exec, traded)
	e.replaceWatch([]models.ScreenedAsset{
		{Symbol: "AAPL", Action: models.ActionBuy, PivotPrice: 100, AvgVolume: 1000},
	})

	ts := time.Date(2026, 8, 28, 15, 30, 0, 0, time.UTC)
	e.handle(context.Background(), event("AAPL", 100.5, 6000, ts))
	if got := exec.orderCount(); got != 1 {
		t.Fatalf("submit attempts = %d, want 1: rejections are final", got)
	}
	if !traded.Contains("AAPL") {
		t.Fatal("rejected symbol must stay marked traded")
	}
}

func TestEngineWatchUpdateSkipsTradedSymbols(t *testing.T) {
	exec := &fakeExecutor{result: models.OrderResult{Status: models.StatusFilled}}
	traded := NewTradedSet()
	traded.Add("AAPL")
	e := newTestEngine(exec, traded)
	e.replaceWatch([]models.ScreenedAsset{
		{Symbol: "AAPL", Action: models.ActionBuy, PivotPrice: 100, AvgVolume: 1000},
	})

	ts := time.Date(2026, 8, 28, 15, 30, 0, 0, time.UTC)
	e.handle(context.Background(), event("AAPL", 100.5, 6000, ts))
	if got := exec.orderCount(); got != 0 {
		t.Fatalf("orders = %d, want 0 for an already-traded symbol", got)
	}
}

func TestTradedSetFilter(t *testing.T) {
	s := NewTradedSet()
	s.Add("AAPL")
	assets := []models.ScreenedAsset{
		{Symbol: "AAPL", Action: models.ActionBuy},
		{Symbol: "MSFT", Action: models.ActionSell},
	}
	got := s.Filter(assets)
	if len(got) != 1 || got[0].Symbol != "MSFT" {
		t.Fatalf("filtered = %+v, want only MSFT", got)
	}
}
