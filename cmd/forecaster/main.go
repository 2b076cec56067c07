// Command forecaster implements the SolarIQ forecast service.
//
// The forecaster serves a synchronous HTTP API that:
//  1. Collects daily solar and load history from the configured sources
//  2. Trains or updates one model per series from its persisted state
//  3. Predicts both series, merges them into net demand and stores the rows
//  4. Serves stored history, today's summary, bill breakdowns and weather data
//
// The forecaster serves an HTTP API on port 5000 (configurable) providing:
//   - POST /predict - Forecast a date range
//   - GET /history - Most recent stored forecasts
//   - GET /today_status - Summary of today's forecasts
//   - GET /solar_status - Bill breakdown for one reading
//   - GET /nasa_data - Daily weather observations
//   - GET /healthz - Health check endpoint
//   - GET /metrics - Prometheus metrics endpoint
//
// Usage:
//
//	forecaster \
//	  -result-store=postgres \
//	  -postgres-dsn=postgres://solariq@db/solariq \
//	  -model-store=redis \
//	  -redis-addr=redis:6379 \
//	  -solar-adapter=prometheus
//
// Environment variables:
//
//	LISTEN               - HTTP listen address (default: :5000)
//	RESULT_STORE         - sqlite, postgres, or memory (default: sqlite)
//	SQLITE_PATH          - SQLite database file (default: predictions.db)
//	POSTGRES_DSN         - Postgres connection string
//	MODEL_STORE          - file, redis, or memory (default: file)
//	MODEL_DIR            - Model directory (default: models)
//	REDIS_ADDR           - Redis address (default: localhost:6379)
//	MODEL_CACHE_SIZE     - In-process model cache entries, ignored for redis (default: 16)
//	SOLAR_ADAPTER        - Solar history source (default: sample)
//	LOAD_ADAPTER         - Load history source (default: sample)
//	SOLAR_ADAPTER_*      - Solar source settings, e.g. SOLAR_ADAPTER_QUERY
//	LOAD_ADAPTER_*       - Load source settings, e.g. LOAD_ADAPTER_URL
//	SOLAR_MODEL          - seasonal, autoregressive, or byom (default: seasonal)
//	LOAD_MODEL           - seasonal, autoregressive, or byom (default: autoregressive)
//	LAGS                 - Lag features per series (default: 3)
//	HISTORY_DAYS         - Days of history per forecast (default: 180)
//	MAX_HORIZON_DAYS     - Furthest end date from today (default: 366)
//	PREDICT_TIMEOUT      - Timeout of one forecast (default: 60s)
//	TARIFF_FILE          - YAML tariff table
//	WEATHER_URL          - NASA POWER endpoint
//	CORS_ALLOWED_ORIGINS - Allowed origins (default: *)
//	RATE_LIMIT_RPS       - Requests per second, 0 disables (default: 0)
//	LOG_LEVEL            - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT           - Logging format: text, json (default: text)
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/HatiCode/solariq/cmd/forecaster/config"
	"github.com/HatiCode/solariq/cmd/forecaster/logger"
	"github.com/HatiCode/solariq/cmd/forecaster/metrics"
	cmdmodels "github.com/HatiCode/solariq/cmd/forecaster/models"
	"github.com/HatiCode/solariq/cmd/forecaster/router"
	"github.com/HatiCode/solariq/pkg/adapters"
	"github.com/HatiCode/solariq/pkg/features"
	"github.com/HatiCode/solariq/pkg/httpx"
	"github.com/HatiCode/solariq/pkg/models"
	"github.com/HatiCode/solariq/pkg/modelstore"
	"github.com/HatiCode/solariq/pkg/storage"
	"github.com/HatiCode/solariq/pkg/tariff"
	"github.com/HatiCode/solariq/pkg/weather"
)

// version is set via ldflags at build time
var version = "dev"

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	cfg := config.ParseFlags()

	log := logger.New(cfg)

	log.Info("starting solariq forecaster",
		"version", version,
		"result_store", cfg.ResultStore,
		"model_store", cfg.ModelStore,
		"solar_model", cfg.SolarModel,
		"load_model", cfg.LoadModel,
	)

	if err := run(cfg, log); err != nil {
		log.Error("forecaster failed", "error", err)
		os.Exit(1)
	}

	log.Info("shutdown complete")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, err := buildResultStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeIfCloser(results, "result store", log)

	modelStore, locker, err := buildModelStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeIfCloser(modelStore, "model store", log)

	// a per-process cache would serve stale state next to other replicas
	cacheSize := cfg.ModelCacheSize
	if cfg.ModelStore == "redis" {
		cacheSize = 0
	}
	cached, err := cacheModels(modelStore, cacheSize)
	if err != nil {
		return err
	}

	solar, err := buildPipeline(SeriesSolar, cfg.SolarAdapter, cfg.SolarAdapterConfig, cfg.SolarModel, cfg, cached, locker, log)
	if err != nil {
		return err
	}
	load, err := buildPipeline(SeriesLoad, cfg.LoadAdapter, cfg.LoadAdapterConfig, cfg.LoadModel, cfg, cached, locker, log)
	if err != nil {
		return err
	}

	tariffs, err := loadTariffs(cfg.TariffFile)
	if err != nil {
		return err
	}

	weatherClient := weather.NewClient(weather.Config{
		BaseURL: cfg.WeatherURL,
		Timeout: cfg.WeatherTimeout,
		Retries: cfg.WeatherRetries,
		RPS:     cfg.WeatherRPS,
	}, httpx.NewClient(cfg.WeatherTimeout), log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	f := New(solar, load, features.NewBuilder(), results, tariffs, weatherClient, Options{
		Lags:           cfg.Lags,
		HistoryDays:    cfg.HistoryDays,
		Aggregation:    cfg.Aggregation,
		MaxHorizonDays: cfg.MaxHorizonDays,
		HistoryLimit:   cfg.HistoryLimit,
	}, log, metrics.New(reg))

	handler := router.SetupRoutes(f, router.Options{
		PredictTimeout: cfg.PredictTimeout,
		HealthCheck:    healthCheck(results),
		Gatherer:       reg,
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, log)

	// responses must outlive the predict timeout
	httpServer := httpx.NewServer(cfg.Listen, handler, cfg.PredictTimeout+10*time.Second, log)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	log.Info("shutting down")
	cancel()

	if err := httpServer.Stop(10 * time.Second); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// buildResultStore opens the configured result store.
func buildResultStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Store, error) {
	switch cfg.ResultStore {
	case "sqlite":
		log.Info("using SQLite result store", "path", cfg.SQLitePath)
		s, err := storage.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite result store: %w", err)
		}
		return s, nil

	case "postgres":
		log.Info("using Postgres result store")
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		s, err := storage.NewPostgresStore(connectCtx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres result store: %w", err)
		}
		return s, nil

	case "memory":
		log.Warn("using in-memory result store, forecasts are lost on restart")
		return storage.NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown result store %q", cfg.ResultStore)
	}
}

// buildModelStore opens the configured model store and the matching locker.
// Redis-backed models are locked in Redis so that replicas serialize
// training of the same series.
func buildModelStore(cfg *config.Config, log *slog.Logger) (modelstore.Store, modelstore.Locker, error) {
	switch cfg.ModelStore {
	case "file":
		log.Info("using file model store", "dir", cfg.ModelDir)
		s, err := modelstore.NewFileStore(cfg.ModelDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open file model store: %w", err)
		}
		return s, modelstore.NewLocalLocker(), nil

	case "redis":
		log.Info("using Redis model store", "addr", cfg.RedisAddr, "db", cfg.RedisDB, "ttl", cfg.RedisTTL)
		s, err := modelstore.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis model store: %w", err)
		}
		// lease covers the longest forecast request
		return s, modelstore.NewRedisLocker(s.Client(), cfg.PredictTimeout+time.Minute, log), nil

	case "memory":
		log.Warn("using in-memory model store, models are retrained from scratch on restart")
		return modelstore.NewMemoryStore(), modelstore.NewLocalLocker(), nil

	default:
		return nil, nil, fmt.Errorf("unknown model store %q", cfg.ModelStore)
	}
}

func cacheModels(s modelstore.Store, size int) (modelstore.Store, error) {
	if size <= 0 {
		return s, nil
	}
	cached, err := modelstore.NewCachedStore(s, size)
	if err != nil {
		return nil, fmt.Errorf("model cache: %w", err)
	}
	return cached, nil
}

// buildPipeline wires the history source and trainer of one series.
func buildPipeline(
	name, adapterKind string,
	adapterConfig map[string]string,
	modelName string,
	cfg *config.Config,
	store modelstore.Store,
	locker modelstore.Locker,
	log *slog.Logger,
) (Pipeline, error) {
	adapter, err := buildAdapter(adapterKind, adapterConfig, log)
	if err != nil {
		return Pipeline{}, fmt.Errorf("%s source: %w", name, err)
	}

	factory, err := cmdmodels.New(modelName, name, cfg, log)
	if err != nil {
		return Pipeline{}, err
	}

	trainer := models.NewTrainer(name, factory, store, locker, log).WithMinSamples(cfg.MinSamples)
	return Pipeline{Series: name, Adapter: adapter, Trainer: trainer}, nil
}

// buildAdapter creates a history source from its kind and settings.
func buildAdapter(kind string, config map[string]string, log *slog.Logger) (adapters.Adapter, error) {
	adapter, err := adapters.New(kind, config, adapters.DaySeconds)
	if err != nil {
		return nil, err
	}

	log.Info("initialized history source", "adapter", adapter.Name(), "series", config["series"])
	return adapter, nil
}

func loadTariffs(path string) (tariff.Table, error) {
	if path == "" {
		return tariff.DefaultTable(), nil
	}
	t, err := tariff.LoadTable(path)
	if err != nil {
		return tariff.Table{}, fmt.Errorf("load tariff table: %w", err)
	}
	return t, nil
}

// healthCheck pings the result store when it supports it.
func healthCheck(s storage.Store) func(ctx context.Context) error {
	p, ok := s.(pinger)
	if !ok {
		return nil
	}
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return p.Ping(ctx)
	}
}

func closeIfCloser(v any, what string, log *slog.Logger) {
	closer, ok := v.(interface{ Close() error })
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		log.Error("failed to close "+what, "error", err)
	}
}
