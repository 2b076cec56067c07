package config

import (
	"flag"
	"os"
	"strings"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "environment variable set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "from-env",
			want:         "from-env",
		},
		{
			name:         "environment variable not set",
			key:          "NONEXISTENT_VAR",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue int
		want         int
	}{
		{name: "valid integer", envValue: "42", defaultValue: 10, want: 42},
		{name: "invalid integer", envValue: "not-a-number", defaultValue: 10, want: 10},
		{name: "not set", envValue: "", defaultValue: 99, want: 99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("TEST_INT", tt.envValue)
			}
			if got := getEnvInt("TEST_INT", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvInt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetEnvFloat(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue float64
		want         float64
	}{
		{name: "valid float", envValue: "2.5", defaultValue: 1, want: 2.5},
		{name: "invalid float", envValue: "fast", defaultValue: 1, want: 1},
		{name: "not set", envValue: "", defaultValue: 0.5, want: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("TEST_FLOAT", tt.envValue)
			}
			if got := getEnvFloat("TEST_FLOAT", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvFloat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue time.Duration
		want         time.Duration
	}{
		{name: "valid duration", envValue: "90s", defaultValue: time.Second, want: 90 * time.Second},
		{name: "invalid duration", envValue: "soon", defaultValue: time.Second, want: time.Second},
		{name: "not set", envValue: "", defaultValue: time.Minute, want: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("TEST_DURATION", tt.envValue)
			}
			if got := getEnvDuration("TEST_DURATION", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToLowerCamelCase(t *testing.T) {
	tests := map[string]string{
		"QUERY":            "query",
		"VALUE_PATH":       "valuePath",
		"TIMESTAMP_FORMAT": "timestampFormat",
		"":                 "",
	}
	for in, want := range tests {
		if got := toLowerCamelCase(in); got != want {
			t.Errorf("toLowerCamelCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseAdapterConfig(t *testing.T) {
	t.Setenv("SOLAR_ADAPTER_QUERY", "sum(pv_output_kw)")
	t.Setenv("SOLAR_ADAPTER_URL", "http://vm:8428")
	t.Setenv("LOAD_ADAPTER_VALUE_PATH", "data.#.kw")

	solar := parseAdapterConfig("SOLAR_ADAPTER_", "solar")
	if solar["query"] != "sum(pv_output_kw)" || solar["url"] != "http://vm:8428" {
		t.Errorf("solar config = %v", solar)
	}
	if solar["series"] != "solar" {
		t.Errorf("series = %q, want solar", solar["series"])
	}
	if _, leaked := solar["valuePath"]; leaked {
		t.Error("load settings leaked into solar config")
	}

	load := parseAdapterConfig("LOAD_ADAPTER_", "load")
	if load["valuePath"] != "data.#.kw" || load["series"] != "load" {
		t.Errorf("load config = %v", load)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" https://a.example , ,https://b.example")
	if strings.Join(got, "|") != "https://a.example|https://b.example" {
		t.Errorf("splitList = %v", got)
	}
	if splitList("") != nil {
		t.Error("empty list should be nil")
	}
}

func validConfig() *Config {
	return &Config{
		ResultStore:    "memory",
		ModelStore:     "memory",
		SolarModel:     "seasonal",
		LoadModel:      "autoregressive",
		Aggregation:    "mean",
		HistoryDays:    180,
		Lags:           3,
		MinSamples:     2,
		MaxHorizonDays: 366,
		PredictTimeout: time.Minute,
		HistoryLimit:   100,
		WeatherTimeout: 10 * time.Second,
		RateLimitBurst: 10,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown result store", mutate: func(c *Config) { c.ResultStore = "mongo" }, wantErr: "result-store"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.ResultStore = "postgres" }, wantErr: "postgres-dsn"},
		{name: "sqlite without path", mutate: func(c *Config) { c.ResultStore = "sqlite" }, wantErr: "sqlite-path"},
		{name: "unknown model store", mutate: func(c *Config) { c.ModelStore = "s3" }, wantErr: "model-store"},
		{name: "file store without dir", mutate: func(c *Config) { c.ModelStore = "file" }, wantErr: "model-dir"},
		{name: "unknown model", mutate: func(c *Config) { c.LoadModel = "prophet" }, wantErr: "load-model"},
		{name: "byom without url", mutate: func(c *Config) { c.SolarModel = "byom" }, wantErr: "byom-url"},
		{name: "byom with url", mutate: func(c *Config) { c.SolarModel, c.BYOMURL = "byom", "http://byom:8082" }},
		{name: "bad aggregation", mutate: func(c *Config) { c.Aggregation = "median" }, wantErr: "aggregation"},
		{name: "negative lags", mutate: func(c *Config) { c.Lags = -1 }, wantErr: "lags"},
		{name: "history shorter than lags", mutate: func(c *Config) { c.HistoryDays = 3 }, wantErr: "must exceed lags"},
		{name: "zero horizon cap", mutate: func(c *Config) { c.MaxHorizonDays = 0 }, wantErr: "max-horizon-days"},
		{name: "rate limit without burst", mutate: func(c *Config) { c.RateLimitRPS, c.RateLimitBurst = 5, 0 }, wantErr: "burst"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_FillsDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.MinSamples = 0
	cfg.HistoryLimit = 0
	cfg.WeatherTimeout = 0

	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.MinSamples != 2 || cfg.HistoryLimit != 100 || cfg.WeatherTimeout != 10*time.Second {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestConfig_Defaults(t *testing.T) {
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"forecaster"}

	cfg := ParseFlags()

	if cfg.Listen != ":5000" {
		t.Errorf("Listen = %q, want :5000", cfg.Listen)
	}
	if cfg.ResultStore != "sqlite" || cfg.SQLitePath != "predictions.db" {
		t.Errorf("result store = %s %s", cfg.ResultStore, cfg.SQLitePath)
	}
	if cfg.ModelStore != "file" || cfg.ModelDir != "models" {
		t.Errorf("model store = %s %s", cfg.ModelStore, cfg.ModelDir)
	}
	if cfg.SolarModel != "seasonal" || cfg.LoadModel != "autoregressive" {
		t.Errorf("models = %s %s", cfg.SolarModel, cfg.LoadModel)
	}
	if cfg.SolarAdapter != "sample" || cfg.SolarAdapterConfig["series"] != "solar" {
		t.Errorf("solar adapter = %s %v", cfg.SolarAdapter, cfg.SolarAdapterConfig)
	}
	if cfg.Lags != 3 || cfg.HistoryDays != 180 || cfg.MaxHorizonDays != 366 {
		t.Errorf("training = lags %d days %d cap %d", cfg.Lags, cfg.HistoryDays, cfg.MaxHorizonDays)
	}
	if cfg.PredictTimeout != 60*time.Second || cfg.HistoryLimit != 100 {
		t.Errorf("predict timeout %v, history limit %d", cfg.PredictTimeout, cfg.HistoryLimit)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.RateLimitRPS != 0 || cfg.WeatherRetries != 2 || cfg.WeatherRPS != 1 {
		t.Errorf("rate %v retries %d weather rps %v", cfg.RateLimitRPS, cfg.WeatherRetries, cfg.WeatherRPS)
	}
}

func TestConfig_CustomValues(t *testing.T) {
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	t.Setenv("LOAD_MODEL", "seasonal")
	os.Args = []string{
		"forecaster",
		"-listen=:9000",
		"-result-store=memory",
		"-model-store=redis",
		"-redis-addr=redis:6379",
		"-redis-ttl=24h",
		"-lags=5",
		"-max-horizon-days=30",
		"-cors-origins=https://dash.example,https://ops.example",
		"-rate-limit-rps=20",
	}

	cfg := ParseFlags()

	if cfg.Listen != ":9000" || cfg.ResultStore != "memory" {
		t.Errorf("Listen %q, ResultStore %q", cfg.Listen, cfg.ResultStore)
	}
	if cfg.ModelStore != "redis" || cfg.RedisAddr != "redis:6379" || cfg.RedisTTL != 24*time.Hour {
		t.Errorf("redis = %s %s %v", cfg.ModelStore, cfg.RedisAddr, cfg.RedisTTL)
	}
	if cfg.LoadModel != "seasonal" {
		t.Errorf("LoadModel = %q, want seasonal from env", cfg.LoadModel)
	}
	if cfg.Lags != 5 || cfg.MaxHorizonDays != 30 || cfg.RateLimitRPS != 20 {
		t.Errorf("lags %d cap %d rps %v", cfg.Lags, cfg.MaxHorizonDays, cfg.RateLimitRPS)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}
