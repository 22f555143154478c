package usecase

import (
	"context"
	"time"

	"PivotTrader/internal/domain/repository"
	"PivotTrader/pkg/logger"
)

// RiskConfig carries the per-position exit thresholds, in account
// currency per position.
type RiskConfig struct {
	PollInterval time.Duration
	MaxLoss      float64
	MinProfit    float64
}

// RiskMonitor polls open positions and closes any whose unrealized PnL
// breaches the stop or the target. It runs independently from the
// decision engine so exits never wait on the event stream.
type RiskMonitor struct {
	log     *logger.Logger
	exec    repository.OrderExecutor
	metrics repository.Metrics
	cfg     RiskConfig
}

func NewRiskMonitor(log *logger.Logger, exec repository.OrderExecutor, metrics repository.Metrics, cfg RiskConfig) *RiskMonitor {
	return &RiskMonitor{log: log, exec: exec, metrics: metrics, cfg: cfg}
}

func (m *RiskMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *RiskMonitor) sweep(ctx context.Context) {
	positions, err := m.exec.OpenPositions(ctx)
	if err != nil {
		m.metrics.RecordError("positions")
		m.log.Warn("open positions fetch failed", logger.Error(err))
		return
	}
	for _, pos := range positions {
		if pos.UnrealizedPnL > m.cfg.MaxLoss && pos.UnrealizedPnL < m.cfg.MinProfit {
			continue
		}
		if err := m.exec.ClosePosition(ctx, pos); err != nil {
			m.metrics.RecordError("position_close")
			m.log.Error("position close failed",
				logger.String("symbol", pos.Symbol),
				logger.Float64("pnl", pos.UnrealizedPnL),
				logger.Error(err))
			continue
		}
		m.metrics.RecordOrder("close", "ok")
		m.log.Info("position closed",
			logger.String("symbol", pos.Symbol),
			logger.Float64("pnl", pos.UnrealizedPnL))
	}
}
