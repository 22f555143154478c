package usecase

import (
	"context"
	"time"

	"PivotTrader/internal/domain/models"
	"PivotTrader/internal/domain/repository"
	"PivotTrader/pkg/logger"
	"PivotTrader/pkg/retry"
)

// EngineConfig carries the trade trigger thresholds.
type EngineConfig struct {
	MinuteVolumeGate float64
	VolumeMultiple   float64
	OrderQty         int
}

// watchEntry accumulates the traded volume of the current minute for
// one screened symbol.
type watchEntry struct {
	asset  models.ScreenedAsset
	volume float64
}

// DecisionEngine consumes the trade event stream and submits at most
// one market order per symbol per run. A symbol fires when its price
// crosses the screened pivot in the action's direction while the
// current-minute volume beats both the absolute gate and a multiple of
// the symbol's screened average.
type DecisionEngine struct {
	log     *logger.Logger
	exec    repository.OrderExecutor
	metrics repository.Metrics
	traded  *TradedSet
	retry   retry.Policy
	cfg     EngineConfig

	// only touched by the Run goroutine
	watch  map[string]*watchEntry
	minute time.Time
}

func NewDecisionEngine(
	log *logger.Logger,
	exec repository.OrderExecutor,
	metrics repository.Metrics,
	traded *TradedSet,
	policy retry.Policy,
	cfg EngineConfig,
) *DecisionEngine {
	return &DecisionEngine{
		log:     log,
		exec:    exec,
		metrics: metrics,
		traded:  traded,
		retry:   policy,
		cfg:     cfg,
		watch:   make(map[string]*watchEntry),
	}
}

// Run consumes events and screened-set updates until ctx is done or
// the event channel closes. It is the sole owner of the watch state.
func (e *DecisionEngine) Run(ctx context.Context, events <-chan models.TradeEvent, updates <-chan []models.ScreenedAsset) {
	for {
		select {
		case <-ctx.Done():
			return
		case assets := <-updates:
			e.replaceWatch(assets)
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.handle(ctx, ev)
		}
	}
}

// replaceWatch swaps in a fresh screened set. Volume accumulated this
// minute is real traded volume, so symbols carried over keep their
// accumulator; only the minute boundary resets it.
func (e *DecisionEngine) replaceWatch(assets []models.ScreenedAsset) {
	watch := make(map[string]*watchEntry, len(assets))
	for _, a := range assets {
		if e.traded.Contains(a.Symbol) {
			continue
		}
		entry := &watchEntry{asset: a}
		if prev, ok := e.watch[a.Symbol]; ok {
			entry.volume = prev.volume
		}
		watch[a.Symbol] = entry
	}
	e.watch = watch
	e.log.Debug("watch set replaced", logger.Int("symbols", len(watch)))
}

func (e *DecisionEngine) handle(ctx context.Context, ev models.TradeEvent) {
	// Minute windows follow event time, not wall clock. A new minute
	// resets every symbol's accumulator.
	minute := ev.Timestamp.Truncate(time.Minute)
	if minute.After(e.minute) {
		e.minute = minute
		for _, w := range e.watch {
			w.volume = 0
		}
	}

	w, ok := e.watch[ev.Symbol]
	if !ok {
		return
	}
	if e.traded.Contains(ev.Symbol) {
		delete(e.watch, ev.Symbol)
		return
	}

	w.volume += ev.Size
	if w.volume <= e.cfg.MinuteVolumeGate {
		return
	}
	if w.volume <= e.cfg.VolumeMultiple*w.asset.AvgVolume {
		return
	}

	crossed := false
	switch w.asset.Action {
	case models.ActionBuy:
		crossed = ev.Price > w.asset.PivotPrice
	case models.ActionSell:
		crossed = ev.Price < w.asset.PivotPrice
	}
	if !crossed {
		return
	}

	// Dropping the watch entry stops re-evaluation for the rest of
	// this cycle; the traded set is only marked on a definitive
	// broker outcome, so a transport failure leaves the symbol
	// eligible for later cycles.
	delete(e.watch, ev.Symbol)
	e.submit(ctx, w.asset, ev.Price)
}

func (e *DecisionEngine) submit(ctx context.Context, asset models.ScreenedAsset, price float64) {
	side := models.SideBuy
	if asset.Action == models.ActionSell {
		side = models.SideSell
	}
	order := models.Order{
		Symbol:   asset.Symbol,
		Price:    price,
		Quantity: e.cfg.OrderQty,
		Type:     models.TypeMarket,
		Side:     side,
	}

	var result models.OrderResult
	err := e.retry.Do(ctx, func(ctx context.Context) error {
		res, err := e.exec.SubmitOrder(ctx, order)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		e.metrics.RecordOrder(string(asset.Action), "error")
		e.metrics.RecordError("order_submit")
		e.log.Error("order submission failed, symbol stays eligible",
			logger.String("symbol", asset.Symbol),
			logger.String("action", string(asset.Action)),
			logger.Error(err))
		return
	}
	if result.Status == models.StatusRejected {
		// A rejection is a broker decision, not a transport fault:
		// the symbol is marked and never re-tried.
		e.traded.Add(asset.Symbol)
		e.metrics.RecordOrder(string(asset.Action), "rejected")
		e.log.Warn("order rejected",
			logger.String("symbol", asset.Symbol),
			logger.String("action", string(asset.Action)),
			logger.Float64("price", price))
		return
	}
	e.traded.Add(asset.Symbol)
	e.metrics.RecordOrder(string(asset.Action), "ok")
	e.log.Info("order submitted",
		logger.String("symbol", asset.Symbol),
		logger.String("action", string(asset.Action)),
		logger.Float64("price", price),
		logger.Float64("pivot", asset.PivotPrice),
		logger.Int("qty", e.cfg.OrderQty))
}
