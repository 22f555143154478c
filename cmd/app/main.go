package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"PivotTrader/internal/domain/repository"
	"PivotTrader/internal/service/alpaca"
	"PivotTrader/internal/service/finviz"
	"PivotTrader/internal/service/terminal"
	"PivotTrader/internal/services/pivots"
	"PivotTrader/internal/services/screener"
	"PivotTrader/internal/usecase"
	"PivotTrader/pkg/cache"
	"PivotTrader/pkg/config"
	xhttp "PivotTrader/pkg/http"
	"PivotTrader/pkg/logger"
	"PivotTrader/pkg/metrics"
	"PivotTrader/pkg/retry"
	"PivotTrader/pkg/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	configPath := flag.String("config", "config/config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log.Info("starting up", logger.String("environment", cfg.Environment))

	var rec repository.Metrics = metrics.Nop{}
	if cfg.Metrics.Enabled {
		rec = metrics.New()
	}

	var store cache.BytesCache = cache.NewMemory()
	if cfg.Cache.Redis.Enabled {
		redisStore, err := cache.NewRedis(context.Background(), cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisStore.Close()
		store = redisStore
	}

	market := alpaca.NewClient(log, alpaca.Config{
		KeyID:      cfg.Alpaca.KeyID,
		SecretKey:  cfg.Alpaca.SecretKey,
		Feed:       cfg.Alpaca.Feed,
		TradingURL: cfg.Alpaca.TradingURL,
		DataURL:    cfg.Alpaca.DataURL,
		Timeout:    cfg.Alpaca.Timeout,
		MaxRetries: cfg.Alpaca.MaxRetries,
	})
	streamFactory := func() repository.MarketStream {
		return alpaca.NewStream(log, alpaca.StreamConfig{
			KeyID:          cfg.Alpaca.KeyID,
			SecretKey:      cfg.Alpaca.SecretKey,
			Feed:           cfg.Alpaca.Feed,
			URL:            cfg.Alpaca.StreamURL,
			ReconnectDelay: cfg.Alpaca.Timeout / 10,
			PingInterval:   cfg.Alpaca.Timeout,
		})
	}
	executor := terminal.NewClient(log, terminal.Config{
		BaseURL:  cfg.Terminal.BaseURL,
		Exchange: cfg.Terminal.Exchange,
		Timeout:  cfg.Terminal.Timeout,
	})
	source := finviz.NewScraper(log, finviz.Config{
		ScreenerURL: cfg.Finviz.ScreenerURL,
		Timeout:     cfg.Finviz.Timeout,
	})

	pipeline := screener.NewPipeline(
		log, market, source, rec, store,
		screener.Config{
			PivotCount:          cfg.Pivots.Count,
			MinDayVolume:        cfg.Screener.MinDayVolume,
			MinPrice:            cfg.Screener.MinPrice,
			MaxPrice:            cfg.Screener.MaxPrice,
			MinMeanVolume:       cfg.Screener.MinMeanVolume,
			InitialProximity:    cfg.Screener.InitialProximity,
			ContinuousProximity: cfg.Screener.ContinuousProximity,
			MinMinuteVolume:     cfg.Screener.MinMinuteVolume,
			Continuous:          cfg.Screener.Continuous,
			HistoryTTL:          cfg.Cache.HistoryTTL,
		},
		pivots.NewDetector(cfg.Pivots.Count, cfg.Pivots.BandScale, cfg.Pivots.StrictSlip),
		pivots.NewDetector(cfg.Pivots.Count, cfg.Pivots.BandScale, cfg.Pivots.WideSlip),
	)

	traded := usecase.NewTradedSet()
	router := usecase.NewSubscriptionRouter(log, streamFactory, rec)
	engine := usecase.NewDecisionEngine(log, executor, rec, traded,
		retry.Policy{
			MaxAttempts: cfg.Engine.OrderRetry.MaxAttempts,
			Delay:       cfg.Engine.OrderRetry.Delay,
		},
		usecase.EngineConfig{
			MinuteVolumeGate: cfg.Engine.MinuteVolumeGate,
			VolumeMultiple:   cfg.Engine.VolumeMultiple,
			OrderQty:         cfg.Terminal.OrderQty,
		})
	risk := usecase.NewRiskMonitor(log, executor, rec, usecase.RiskConfig{
		PollInterval: cfg.Risk.PollInterval,
		MaxLoss:      cfg.Risk.MaxLoss,
		MinProfit:    cfg.Risk.MinProfit,
	})
	orch := usecase.NewOrchestrator(log, pipeline, router, engine, risk, executor, market, traded,
		usecase.OrchestratorConfig{
			Continuous:    cfg.Screener.Continuous,
			CycleInterval: cfg.Screener.CycleInterval,
			CloseBuffer:   cfg.Session.CloseBuffer,
		})

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	ops := xhttp.NewServer(
		func() bool { return true },
		metricsPath,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	)

	return server.New(cfg, log, orch, ops).Run()
}
