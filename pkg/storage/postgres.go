package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/HatiCode/solariq/pkg/series"
)

// DatabasePool is the subset of *pgxpool.Pool used by PostgresStore, so a
// mock pool can stand in during tests.
type DatabasePool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS forecasts (
	id BIGSERIAL PRIMARY KEY,
	date TEXT NOT NULL,
	yhat_solar DOUBLE PRECISION NOT NULL,
	yhat_load DOUBLE PRECISION NOT NULL,
	net_demand DOUBLE PRECISION NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_forecasts_date ON forecasts (date DESC, id DESC)`

// PostgresStore implements Store on PostgreSQL for deployments that run
// several forecaster instances against one history. Dates and timestamps
// are stored as text in the same layouts as SQLiteStore.
type PostgresStore struct {
	pool DatabasePool
}

// NewPostgresStore connects to dsn, verifies connectivity and migrates the
// schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	s := NewPostgresStoreWithPool(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreWithPool wraps an existing pool. The schema is not
// migrated.
func NewPostgresStoreWithPool(pool DatabasePool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the forecasts table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to migrate postgres schema: %w", err)
	}
	return nil
}

// Append inserts rows in a single transaction.
func (s *PostgresStore) Append(ctx context.Context, rows []series.ForecastRow, observedAt time.Time) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	created := stamp(observedAt).Format(CreatedAtLayout)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("append: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range rows {
		if r.Date.IsZero() {
			return 0, fmt.Errorf("append: row without date")
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO forecasts (date, yhat_solar, yhat_load, net_demand, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			r.Date.Format(series.DateLayout), r.YhatSolar, r.YhatLoad, r.NetDemand, created); err != nil {
			return 0, fmt.Errorf("append: insert %s: %w", r.Date.Format(series.DateLayout), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("append: commit: %w", err)
	}
	return len(rows), nil
}

// Recent returns up to limit rows, most recent date first.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]PersistedForecast, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, date, yhat_solar, yhat_load, net_demand, created_at
		FROM forecasts
		ORDER BY date DESC, id DESC
		LIMIT $1`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("recent: %w", err)
	}
	return scanPostgres(rows)
}

// ForDate returns the rows stored for day, newest first.
func (s *PostgresStore) ForDate(ctx context.Context, day time.Time) ([]PersistedForecast, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, date, yhat_solar, yhat_load, net_demand, created_at
		FROM forecasts
		WHERE date = $1
		ORDER BY id DESC`, series.Day(day).Format(series.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("for date: %w", err)
	}
	return scanPostgres(rows)
}

// Ping verifies the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPostgres(rows pgx.Rows) ([]PersistedForecast, error) {
	defer rows.Close()

	out := []PersistedForecast{}
	for rows.Next() {
		var (
			p               PersistedForecast
			date, createdAt string
		)
		if err := rows.Scan(&p.ID, &date, &p.YhatSolar, &p.YhatLoad, &p.NetDemand, &createdAt); err != nil {
			return nil, fmt.Errorf("scan forecast: %w", err)
		}
		if err := decodeText(&p, date, createdAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan forecasts: %w", err)
	}
	return out, nil
}
