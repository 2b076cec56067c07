package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/HatiCode/solariq/cmd/forecaster/config"
	"github.com/HatiCode/solariq/pkg/modelstore"
	"github.com/HatiCode/solariq/pkg/storage"
	"github.com/HatiCode/solariq/pkg/tariff"
)

func TestBuildResultStore(t *testing.T) {
	ctx := context.Background()

	sqlite, err := buildResultStore(ctx, &config.Config{ResultStore: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "predictions.db")}, discardLogger())
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer closeIfCloser(sqlite, "result store", discardLogger())
	if _, ok := sqlite.(*storage.SQLiteStore); !ok {
		t.Errorf("expected *storage.SQLiteStore, got %T", sqlite)
	}
	check := healthCheck(sqlite)
	if check == nil || check(ctx) != nil {
		t.Error("sqlite health check should ping successfully")
	}

	mem, err := buildResultStore(ctx, &config.Config{ResultStore: "memory"}, discardLogger())
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if healthCheck(mem) != nil {
		t.Error("memory store has no health check")
	}

	if _, err := buildResultStore(ctx, &config.Config{ResultStore: "cassandra"}, discardLogger()); err == nil {
		t.Error("expected error for unknown result store")
	}
}

func TestBuildModelStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "models")
	s, locker, err := buildModelStore(&config.Config{ModelStore: "file", ModelDir: dir}, discardLogger())
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	if _, ok := s.(*modelstore.FileStore); !ok {
		t.Errorf("expected *modelstore.FileStore, got %T", s)
	}
	if _, ok := locker.(*modelstore.LocalLocker); !ok {
		t.Errorf("expected *modelstore.LocalLocker, got %T", locker)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("model dir not created: %v", err)
	}

	mr := miniredis.RunT(t)
	s, locker, err = buildModelStore(&config.Config{ModelStore: "redis", RedisAddr: mr.Addr(), PredictTimeout: time.Second}, discardLogger())
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	defer closeIfCloser(s, "model store", discardLogger())
	if _, ok := locker.(*modelstore.RedisLocker); !ok {
		t.Errorf("expected *modelstore.RedisLocker, got %T", locker)
	}

	if _, _, err := buildModelStore(&config.Config{ModelStore: "s3"}, discardLogger()); err == nil {
		t.Error("expected error for unknown model store")
	}
}

func TestCacheModels(t *testing.T) {
	backend := modelstore.NewMemoryStore()

	same, err := cacheModels(backend, 0)
	if err != nil || same != backend {
		t.Errorf("size 0 should return the backend unchanged, got %T %v", same, err)
	}

	cached, err := cacheModels(backend, 4)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := cached.(*modelstore.CachedStore); !ok {
		t.Errorf("expected *modelstore.CachedStore, got %T", cached)
	}
}

func TestBuildPipeline(t *testing.T) {
	cfg := &config.Config{Lags: 3, MinSamples: 2}
	store := modelstore.NewMemoryStore()

	p, err := buildPipeline(SeriesLoad, "sample", map[string]string{"series": "load"}, "autoregressive", cfg, store, modelstore.NewLocalLocker(), discardLogger())
	if err != nil {
		t.Fatalf("buildPipeline failed: %v", err)
	}
	if p.Series != SeriesLoad || p.Trainer.Key() != SeriesLoad || p.Trainer.ModelName() != "autoregressive" {
		t.Errorf("pipeline = %s %s %s", p.Series, p.Trainer.Key(), p.Trainer.ModelName())
	}

	if _, err := buildPipeline(SeriesLoad, "sample", map[string]string{"series": "load"}, "prophet", cfg, store, nil, discardLogger()); err == nil {
		t.Error("expected error for unknown model")
	}
}

func TestLoadTariffs(t *testing.T) {
	def, err := loadTariffs("")
	if err != nil {
		t.Fatal(err)
	}
	if def.GridRate("industry") != tariff.DefaultTable().GridRate("industry") {
		t.Error("empty path should load the built-in table")
	}

	path := filepath.Join(t.TempDir(), "tariffs.yaml")
	if err := os.WriteFile(path, []byte("grid_rates:\n  domestic: 6.1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	custom, err := loadTariffs(path)
	if err != nil {
		t.Fatal(err)
	}
	if custom.GridRate("domestic") != 6.1 {
		t.Errorf("domestic grid rate = %v, want 6.1", custom.GridRate("domestic"))
	}

	if _, err := loadTariffs(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing tariff file")
	}
}
