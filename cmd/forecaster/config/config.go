// Package config provides configuration parsing and management for the forecaster.
//
// It handles both command-line flags and environment variables, with flags taking
// precedence over environment variables. The Config struct contains all runtime
// configuration for the service including:
//   - HTTP listener, CORS and rate limiting
//   - Result store (sqlite, postgres, memory) and model store (file, redis, memory)
//   - History sources for the solar and load series
//   - Model selection and training parameters
//   - Weather client and tariff table
//
// History source settings are passed as prefixed environment variables:
// SOLAR_ADAPTER_QUERY=... becomes {"query": "..."} for the solar source.
//
// Supported configuration sources (in order of precedence):
//  1. Command-line flags
//  2. Environment variables
//  3. Default values
//
// Example usage:
//
//	cfg := config.ParseFlags()
//	// cfg has been validated
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/HatiCode/solariq/pkg/adapters"
	"github.com/HatiCode/solariq/pkg/weather"
)

// Config holds all forecaster configuration.
type Config struct {
	Listen    string
	LogFormat string
	LogLevel  string

	ResultStore string
	SQLitePath  string
	PostgresDSN string

	ModelStore     string
	ModelDir       string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisTTL       time.Duration
	ModelCacheSize int

	SolarAdapter       string
	SolarAdapterConfig map[string]string
	LoadAdapter        string
	LoadAdapterConfig  map[string]string
	Aggregation        string
	HistoryDays        int

	Lags           int
	SolarModel     string
	LoadModel      string
	BYOMURL        string
	MinSamples     int
	MaxHorizonDays int
	PredictTimeout time.Duration
	HistoryLimit   int

	TariffFile string

	WeatherURL     string
	WeatherTimeout time.Duration
	WeatherRetries int
	WeatherRPS     float64

	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// ParseFlags parses command-line flags and environment variables into a Config.
// Environment variables are used as fallbacks when flags are not provided.
// Invalid configuration terminates the process with a message.
func ParseFlags() *Config {
	cfg := &Config{}
	var corsOrigins string

	flag.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":5000"), "HTTP listen address")

	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	flag.StringVar(&cfg.ResultStore, "result-store", getEnv("RESULT_STORE", "sqlite"), "Result store: sqlite, postgres, or memory")
	flag.StringVar(&cfg.SQLitePath, "sqlite-path", getEnv("SQLITE_PATH", "predictions.db"), "SQLite database file")
	flag.StringVar(&cfg.PostgresDSN, "postgres-dsn", getEnv("POSTGRES_DSN", ""), "Postgres connection string (required when result-store=postgres)")

	flag.StringVar(&cfg.ModelStore, "model-store", getEnv("MODEL_STORE", "file"), "Model store: file, redis, or memory")
	flag.StringVar(&cfg.ModelDir, "model-dir", getEnv("MODEL_DIR", "models"), "Directory for file model store")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	flag.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	flag.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", 0), "Redis model TTL (0 keeps models forever)")
	flag.IntVar(&cfg.ModelCacheSize, "model-cache-size", getEnvInt("MODEL_CACHE_SIZE", 16), "In-process model cache entries (0 disables)")

	flag.StringVar(&cfg.SolarAdapter, "solar-adapter", getEnv("SOLAR_ADAPTER", "sample"), "Solar history source: sample, prometheus, victoriametrics, or http")
	flag.StringVar(&cfg.LoadAdapter, "load-adapter", getEnv("LOAD_ADAPTER", "sample"), "Load history source: sample, prometheus, victoriametrics, or http")
	flag.StringVar(&cfg.Aggregation, "aggregation", getEnv("AGGREGATION", adapters.AggregateMean), "Daily aggregation of raw samples: mean or sum")
	flag.IntVar(&cfg.HistoryDays, "history-days", getEnvInt("HISTORY_DAYS", adapters.DefaultSampleDays), "Days of history collected per forecast")

	flag.IntVar(&cfg.Lags, "lags", getEnvInt("LAGS", 3), "Number of lag features")
	flag.StringVar(&cfg.SolarModel, "solar-model", getEnv("SOLAR_MODEL", "seasonal"), "Solar model: seasonal, autoregressive, or byom")
	flag.StringVar(&cfg.LoadModel, "load-model", getEnv("LOAD_MODEL", "autoregressive"), "Load model: seasonal, autoregressive, or byom")
	flag.StringVar(&cfg.BYOMURL, "byom-url", getEnv("BYOM_URL", ""), "BYOM service URL (required when a model is byom)")
	flag.IntVar(&cfg.MinSamples, "min-samples", getEnvInt("MIN_SAMPLES", 2), "Minimum training rows")
	flag.IntVar(&cfg.MaxHorizonDays, "max-horizon-days", getEnvInt("MAX_HORIZON_DAYS", 366), "Furthest forecast end date, in days from today")
	flag.DurationVar(&cfg.PredictTimeout, "predict-timeout", getEnvDuration("PREDICT_TIMEOUT", 60*time.Second), "Timeout of one forecast request")
	flag.IntVar(&cfg.HistoryLimit, "history-limit", getEnvInt("HISTORY_LIMIT", 100), "Rows returned by /history")

	flag.StringVar(&cfg.TariffFile, "tariff-file", getEnv("TARIFF_FILE", ""), "YAML tariff table (built-in table when empty)")

	flag.StringVar(&cfg.WeatherURL, "weather-url", getEnv("WEATHER_URL", weather.DefaultBaseURL), "NASA POWER daily point endpoint")
	flag.DurationVar(&cfg.WeatherTimeout, "weather-timeout", getEnvDuration("WEATHER_TIMEOUT", 10*time.Second), "Timeout per weather request attempt")
	flag.IntVar(&cfg.WeatherRetries, "weather-retries", getEnvInt("WEATHER_RETRIES", 2), "Retries of transient weather failures")
	flag.Float64Var(&cfg.WeatherRPS, "weather-rps", getEnvFloat("WEATHER_RPS", 1), "Outbound weather requests per second")

	flag.StringVar(&corsOrigins, "cors-origins", getEnv("CORS_ALLOWED_ORIGINS", "*"), "Comma-separated allowed CORS origins")
	flag.Float64Var(&cfg.RateLimitRPS, "rate-limit-rps", getEnvFloat("RATE_LIMIT_RPS", 0), "Requests per second per instance (0 disables)")
	flag.IntVar(&cfg.RateLimitBurst, "rate-limit-burst", getEnvInt("RATE_LIMIT_BURST", 10), "Rate limiter burst")

	flag.Parse()

	cfg.CORSOrigins = splitList(corsOrigins)
	cfg.SolarAdapterConfig = parseAdapterConfig("SOLAR_ADAPTER_", adapters.SampleSolar)
	cfg.LoadAdapterConfig = parseAdapterConfig("LOAD_ADAPTER_", adapters.SampleLoad)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	return cfg
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.ResultStore {
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite-path is required when result-store=sqlite")
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres-dsn is required when result-store=postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid result-store %q (must be sqlite, postgres, or memory)", c.ResultStore)
	}

	switch c.ModelStore {
	case "file":
		if c.ModelDir == "" {
			return fmt.Errorf("model-dir is required when model-store=file")
		}
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("redis-addr is required when model-store=redis")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid model-store %q (must be file, redis, or memory)", c.ModelStore)
	}

	for _, m := range []struct{ flag, value string }{{"solar-model", c.SolarModel}, {"load-model", c.LoadModel}} {
		switch m.value {
		case "seasonal", "autoregressive":
		case "byom":
			if c.BYOMURL == "" {
				return fmt.Errorf("byom-url is required when %s=byom", m.flag)
			}
		default:
			return fmt.Errorf("invalid %s %q (must be seasonal, autoregressive, or byom)", m.flag, m.value)
		}
	}

	if c.Aggregation != adapters.AggregateMean && c.Aggregation != adapters.AggregateSum {
		return fmt.Errorf("invalid aggregation %q (must be mean or sum)", c.Aggregation)
	}
	if c.HistoryDays <= 0 {
		return fmt.Errorf("history-days must be > 0")
	}
	if c.Lags < 0 {
		return fmt.Errorf("lags cannot be negative")
	}
	if c.HistoryDays <= c.Lags {
		return fmt.Errorf("history-days (%d) must exceed lags (%d)", c.HistoryDays, c.Lags)
	}
	if c.MaxHorizonDays <= 0 {
		return fmt.Errorf("max-horizon-days must be > 0")
	}
	if c.PredictTimeout <= 0 {
		return fmt.Errorf("predict-timeout must be > 0")
	}
	if c.ModelCacheSize < 0 {
		return fmt.Errorf("model-cache-size cannot be negative")
	}
	if c.WeatherRetries < 0 {
		return fmt.Errorf("weather-retries cannot be negative")
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("rate-limit-rps cannot be negative")
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate-limit-burst must be > 0 when rate limiting is enabled")
	}

	// defaults that are not worth an error
	if c.MinSamples < 2 {
		c.MinSamples = 2
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 100
	}
	if c.WeatherTimeout <= 0 {
		c.WeatherTimeout = 10 * time.Second
	}

	return nil
}

// parseAdapterConfig parses prefixed environment variables into a generic
// configuration map. Names are converted to camelCase keys, for example
// SOLAR_ADAPTER_VALUE_PATH becomes valuePath. sampleSeries seeds the
// "series" key used by the sample source.
func parseAdapterConfig(prefix, sampleSeries string) map[string]string {
	config := map[string]string{"series": sampleSeries}

	for _, env := range os.Environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(name, prefix) || len(name) == len(prefix) {
			continue
		}
		config[toLowerCamelCase(name[len(prefix):])] = value
	}

	return config
}

func toLowerCamelCase(s string) string {
	if s == "" {
		return s
	}
	parts := []rune(s)
	result := make([]rune, 0, len(parts))
	nextUpper := false
	for i, r := range parts {
		if r == '_' {
			nextUpper = true
			continue
		}
		if i == 0 {
			result = append(result, toLower(r))
		} else if nextUpper {
			result = append(result, r)
			nextUpper = false
		} else {
			result = append(result, toLower(r))
		}
	}
	return string(result)
}

func toLower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + 32
	}
	return r
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
