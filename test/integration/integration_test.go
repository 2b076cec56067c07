//go:build integration

package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/HatiCode/solariq/pkg/adapters"
	"github.com/HatiCode/solariq/pkg/features"
	"github.com/HatiCode/solariq/pkg/models"
	"github.com/HatiCode/solariq/pkg/modelstore"
	"github.com/HatiCode/solariq/pkg/series"
	"github.com/HatiCode/solariq/pkg/storage"
)

const historyDays = 90

var today = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startRedis(t *testing.T, ctx context.Context) string {
	t.Helper()

	c, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("Failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(c); err != nil {
			t.Logf("Failed to terminate redis container: %v", err)
		}
	})

	endpoint, err := c.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Failed to get redis endpoint: %v", err)
	}
	return strings.TrimPrefix(endpoint, "redis://")
}

func startPostgres(t *testing.T, ctx context.Context) string {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "solariq",
			"POSTGRES_PASSWORD": "solariq",
			"POSTGRES_DB":       "solariq",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(c); err != nil {
			t.Logf("Failed to terminate postgres container: %v", err)
		}
	})

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get postgres host: %v", err)
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("Failed to get postgres port: %v", err)
	}
	return fmt.Sprintf("postgres://solariq:solariq@%s:%s/solariq?sslmode=disable", host, port.Port())
}

// replica is one forecaster instance sharing the Redis model store.
type replica struct {
	store *modelstore.RedisStore
	solar *models.Trainer
	load  *models.Trainer
}

func newReplica(t *testing.T, addr string) *replica {
	t.Helper()

	store, err := modelstore.NewRedisStore(addr, "", 0, 0)
	if err != nil {
		t.Fatalf("Failed to open redis model store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	locker := modelstore.NewRedisLocker(store.Client(), time.Minute, discardLogger())
	return &replica{
		store: store,
		solar: models.NewTrainer("solar", func() models.Model { return models.NewSeasonalModel("solar") }, store, locker, discardLogger()),
		load:  models.NewTrainer("load", func() models.Model { return models.NewAutoregressiveModel("load", 3) }, store, locker, discardLogger()),
	}
}

func buildFrame(t *testing.T, ctx context.Context, name string, lags int) features.Frame {
	t.Helper()

	a := &adapters.SampleAdapter{Series: name, Now: func() time.Time { return today.Add(9 * time.Hour) }}
	df, err := a.Collect(ctx, historyDays*adapters.DaySeconds)
	if err != nil {
		t.Fatalf("Collect %s failed: %v", name, err)
	}
	s, err := adapters.ToSeries(df, name, adapters.AggregateMean)
	if err != nil {
		t.Fatalf("ToSeries %s failed: %v", name, err)
	}
	frame, err := features.NewBuilder().BuildFeatures(s, name, lags)
	if err != nil {
		t.Fatalf("BuildFeatures %s failed: %v", name, err)
	}
	return frame
}

func forecastTo(t *testing.T, ctx context.Context, tr *models.Trainer, frame features.Frame, end time.Time) []series.TimePoint {
	t.Helper()

	fm, err := tr.TrainOrUpdate(ctx, frame)
	if err != nil {
		t.Fatalf("TrainOrUpdate %s failed: %v", tr.Key(), err)
	}
	fc, err := tr.Forecast(ctx, fm, series.DaysBetween(fm.LastDate(), end))
	if err != nil {
		t.Fatalf("Forecast %s failed: %v", tr.Key(), err)
	}
	return fc.Points
}

// TestReplicasShareModelState trains the same series from two instances
// concurrently and checks that no update is lost.
func TestReplicasShareModelState(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	addr := startRedis(t, ctx)

	a := newReplica(t, addr)
	b := newReplica(t, addr)
	frame := buildFrame(t, ctx, "load", 3)

	const perReplica = 5
	var wg sync.WaitGroup
	errs := make(chan error, 2*perReplica)
	for _, r := range []*replica{a, b} {
		wg.Add(1)
		go func(r *replica) {
			defer wg.Done()
			for range perReplica {
				if _, err := r.load.TrainOrUpdate(ctx, frame); err != nil {
					errs <- err
				}
			}
		}(r)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("TrainOrUpdate failed: %v", err)
	}

	// a third instance sees the final state
	fm, found, err := newReplica(t, addr).load.LoadModel(ctx)
	if err != nil || !found {
		t.Fatalf("LoadModel: found=%v err=%v", found, err)
	}
	if fm.Version != 2*perReplica {
		t.Errorf("Expected version %d after concurrent training, got %d", 2*perReplica, fm.Version)
	}
	if fm.Rows() != frame.Len() {
		t.Errorf("Expected %d history rows, got %d", frame.Len(), fm.Rows())
	}
	if fm.Model != "autoregressive" {
		t.Errorf("Expected autoregressive model, got %s", fm.Model)
	}
}

// TestForecastToPostgres runs collect, train, predict, merge and append
// against real Redis and Postgres, then reads the rows back.
func TestForecastToPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	r := newReplica(t, startRedis(t, ctx))

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	results, err := storage.NewPostgresStore(connectCtx, startPostgres(t, ctx))
	if err != nil {
		t.Fatalf("Failed to open postgres result store: %v", err)
	}
	defer results.Close()

	start := today
	end := today.AddDate(0, 0, 4)

	solar := forecastTo(t, ctx, r.solar, buildFrame(t, ctx, "solar", 3), end)
	load := forecastTo(t, ctx, r.load, buildFrame(t, ctx, "load", 3), end)

	rows := series.Merge(solar, load, start, end)
	if len(rows) != 5 {
		t.Fatalf("Expected 5 merged rows, got %d", len(rows))
	}

	n, err := results.Append(ctx, rows, today.Add(9*time.Hour))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if n != len(rows) {
		t.Errorf("Expected %d rows appended, got %d", len(rows), n)
	}

	t.Run("Recent", func(t *testing.T) {
		recent, err := results.Recent(ctx, 3)
		if err != nil {
			t.Fatalf("Recent failed: %v", err)
		}
		if len(recent) != 3 {
			t.Fatalf("Expected 3 rows, got %d", len(recent))
		}
		if !recent[0].Date.Equal(end) {
			t.Errorf("Expected newest date %s first, got %s", end.Format(series.DateLayout), recent[0].Date.Format(series.DateLayout))
		}
	})

	t.Run("Today", func(t *testing.T) {
		stored, err := results.ForDate(ctx, today)
		if err != nil {
			t.Fatalf("ForDate failed: %v", err)
		}
		if len(stored) != 1 {
			t.Fatalf("Expected 1 row for today, got %d", len(stored))
		}
		if stored[0].NetDemand != rows[0].NetDemand {
			t.Errorf("Expected net demand %v, got %v", rows[0].NetDemand, stored[0].NetDemand)
		}

		summary := storage.Summarize(today, stored)
		if summary.Status != storage.SummarySuccess {
			t.Errorf("Expected success summary, got %s", summary.Status)
		}
		if summary.AvgEfficiency != 100 {
			t.Errorf("Expected 100%% efficiency for a single row, got %v", summary.AvgEfficiency)
		}
	})

	t.Run("ModelsPersisted", func(t *testing.T) {
		for _, key := range []string{"solar", "load"} {
			if _, found, err := r.store.Load(ctx, key); err != nil || !found {
				t.Errorf("Expected %s model in redis: found=%v err=%v", key, found, err)
			}
		}
	})
}
