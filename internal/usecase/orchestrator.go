package usecase

import (
	"context"
	"sync"
	"time"

	"PivotTrader/internal/domain/models"
	"PivotTrader/internal/domain/repository"
	"PivotTrader/internal/services/screener"
	"PivotTrader/pkg/logger"
)

const closeAllTimeout = 15 * time.Second

// OrchestratorConfig carries the session-level settings.
type OrchestratorConfig struct {
	Continuous    bool
	CycleInterval time.Duration
	CloseBuffer   time.Duration
}

// Orchestrator drives a trading session: one Stage-1 qualification at
// startup, then screening cycles that feed the subscription router and
// the decision engine until shortly before the market closes. On any
// exit path it tears the stream down and flattens the account.
type Orchestrator struct {
	log      *logger.Logger
	pipeline *screener.Pipeline
	router   *SubscriptionRouter
	engine   *DecisionEngine
	risk     *RiskMonitor
	exec     repository.OrderExecutor
	md       repository.MarketData
	traded   *TradedSet
	cfg      OrchestratorConfig

	updates chan []models.ScreenedAsset
}

func NewOrchestrator(
	log *logger.Logger,
	pipeline *screener.Pipeline,
	router *SubscriptionRouter,
	engine *DecisionEngine,
	risk *RiskMonitor,
	exec repository.OrderExecutor,
	md repository.MarketData,
	traded *TradedSet,
	cfg OrchestratorConfig,
) *Orchestrator {
	return &Orchestrator{
		log:      log,
		pipeline: pipeline,
		router:   router,
		engine:   engine,
		risk:     risk,
		exec:     exec,
		md:       md,
		traded:   traded,
		cfg:      cfg,
		updates:  make(chan []models.ScreenedAsset, 1),
	}
}

// Run blocks until ctx is canceled or the pre-close cutoff passes.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.shutdown()

	if err := o.pipeline.RunStage1(ctx); err != nil {
		return err
	}

	nextClose, err := o.md.NextClose(ctx)
	if err != nil {
		return err
	}
	cutoff := nextClose.Add(-o.cfg.CloseBuffer)
	o.log.Info("session window set",
		logger.Time("next_close", nextClose),
		logger.Time("cutoff", cutoff))

	runCtx, cancel := context.WithDeadline(ctx, cutoff)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		o.engine.Run(runCtx, o.router.Events(), o.updates)
	}()
	go func() {
		defer wg.Done()
		o.risk.Run(runCtx)
	}()

	o.runCycle(runCtx)
	if o.cfg.Continuous {
		ticker := time.NewTicker(o.cfg.CycleInterval)
		defer ticker.Stop()
	loop:
		for {
			select {
			case <-runCtx.Done():
				break loop
			case <-ticker.C:
				o.runCycle(runCtx)
			}
		}
	} else {
		// Single-pass mode screens once and then just trades the set
		// until the cutoff.
		<-runCtx.Done()
	}

	cancel()
	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	o.log.Info("pre-close cutoff reached")
	return nil
}

func (o *Orchestrator) runCycle(ctx context.Context) {
	assets, err := o.pipeline.RunStage2(ctx)
	if err != nil {
		o.log.Error("screening cycle failed", logger.Error(err))
		return
	}
	assets = o.traded.Filter(assets)

	select {
	case o.updates <- assets:
	case <-ctx.Done():
		return
	}

	symbols := make([]string, 0, len(assets))
	for _, a := range assets {
		symbols = append(symbols, a.Symbol)
	}
	if err := o.router.Update(ctx, symbols); err != nil {
		o.log.Error("subscription update failed", logger.Error(err))
	}
}

// shutdown runs on every exit path: the stream goes down first so no
// new orders can trigger, then the account is flattened.
func (o *Orchestrator) shutdown() {
	o.router.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), closeAllTimeout)
	defer cancel()
	if err := o.exec.CloseAllPositions(ctx); err != nil {
		o.log.Error("closing positions on shutdown failed", logger.Error(err))
		return
	}
	o.log.Info("all positions closed")
}
