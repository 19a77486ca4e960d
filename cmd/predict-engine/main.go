package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ledgerstack/predict-engine/internal/anomaly"
	"github.com/ledgerstack/predict-engine/internal/api"
	"github.com/ledgerstack/predict-engine/internal/cache"
	"github.com/ledgerstack/predict-engine/internal/config"
	"github.com/ledgerstack/predict-engine/internal/engine"
	"github.com/ledgerstack/predict-engine/internal/forecast"
	"github.com/ledgerstack/predict-engine/internal/metrics"
	"github.com/ledgerstack/predict-engine/internal/repo"
	"github.com/ledgerstack/predict-engine/internal/risk"
	"github.com/ledgerstack/predict-engine/internal/seasonal"
	"github.com/ledgerstack/predict-engine/internal/services"
	"github.com/ledgerstack/predict-engine/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	// Local .env files are optional.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting predict-engine", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider
	switch cfg.Cache.Provider {
	case "redis":
		provider, err := cache.NewRedisProvider(cache.RedisConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
		})
		if err != nil {
			logger.Warn("redis cache unavailable, falling back to memory", slog.Any("error", err))
			cacheProvider = cache.NewMemoryStore(cfg.Cache.Capacity)
		} else {
			cacheProvider = provider
		}
	default:
		cacheProvider = cache.NewMemoryStore(cfg.Cache.Capacity)
	}
	defer cacheProvider.Close()

	var history repo.HistoryProvider
	if cfg.History.BaseURL != "" {
		history = repo.NewHistoryClient(
			cfg.History.BaseURL,
			cfg.History.SeriesPath,
			cfg.History.LedgerPath,
			cfg.History.Timeout,
		)
	} else {
		store, err := repo.OpenLedgerStore(cfg.History.SQLitePath)
		if err != nil {
			logger.Error("failed to open ledger store", slog.String("path", cfg.History.SQLitePath), slog.Any("error", err))
			os.Exit(1)
		}
		defer store.Close()
		history = store
	}

	decomposer := seasonal.NewCachedDecomposer(
		seasonal.NewDecomposer(),
		cacheProvider,
		cfg.Cache.SeasonalTTL,
		logger,
	)

	forecaster := forecast.NewForecaster(forecast.Config{
		Sequence: forecast.SequenceConfig{
			Lookback:  cfg.Forecast.Lookback,
			MaxEpochs: cfg.Forecast.MaxEpochs,
			Seed:      cfg.Forecast.Seed,
		},
		Weighting: forecast.Weighting(cfg.Forecast.Weighting),
	}, logger)

	pipelineOpts := []engine.PipelineOption{
		engine.WithMaxConcurrent(cfg.Engine.MaxConcurrent),
	}
	if cfg.Benchmark.Enabled && cfg.Benchmark.BaseURL != "" {
		pipelineOpts = append(pipelineOpts,
			engine.WithBenchmarks(repo.NewBenchmarkHTTPClient(cfg.Benchmark.BaseURL, cfg.Benchmark.Timeout)))
	}
	pipeline := engine.NewPipeline(logger, history, decomposer, forecaster, pipelineOpts...)

	detector := anomaly.NewDetector(logger, anomaly.WithThreshold(cfg.Anomaly.ReportingThreshold))
	scorer := risk.NewScorer(logger)

	svc := services.NewPredictionService(logger, pipeline, history, detector, scorer)
	server := api.NewServer(logger, cfg.Server, svc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("http server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", slog.Any("error", err))
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("predict-engine stopped")
}
