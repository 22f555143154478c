package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"PivotTrader/internal/usecase"
	"PivotTrader/pkg/config"
	xhttp "PivotTrader/pkg/http"
	"PivotTrader/pkg/logger"
)

// App ties the trading session and the ops HTTP server into one
// lifecycle: start both, then run until the session ends on its own or
// a shutdown signal arrives.
type App struct {
	cfg  *config.Config
	log  *logger.Logger
	orch *usecase.Orchestrator
	ops  *xhttp.Server
}

func New(cfg *config.Config, log *logger.Logger, orch *usecase.Orchestrator, ops *xhttp.Server) *App {
	return &App{cfg: cfg, log: log, orch: orch, ops: ops}
}

// Run blocks until the trading session finishes or SIGINT/SIGTERM
// arrives. The orchestrator owns position cleanup; Run only waits for
// it to finish before tearing the ops server down.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.ops != nil {
		a.ops.Start()
		a.log.Info("ops server started", logger.Int("port", a.cfg.Server.Port))
	}

	sessionErr := make(chan error, 1)
	go func() { sessionErr <- a.orch.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var err error
	select {
	case sig := <-sigCh:
		a.log.Info("shutdown signal received", logger.String("signal", sig.String()))
		cancel()
		err = <-sessionErr
	case err = <-sessionErr:
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	if a.ops != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer stop()
		if serr := a.ops.Stop(shutdownCtx); serr != nil {
			a.log.Warn("ops server shutdown failed", logger.Error(serr))
		}
	}

	a.log.Info("session finished")
	return err
}
