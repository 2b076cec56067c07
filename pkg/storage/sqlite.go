package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/HatiCode/solariq/pkg/series"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS forecasts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	date TEXT NOT NULL,
	yhat_solar REAL NOT NULL,
	yhat_load REAL NOT NULL,
	net_demand REAL NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_forecasts_date ON forecasts(date DESC, id DESC);
`

// SQLiteStore implements Store on a local SQLite file. The schema matches
// the predictions.db layout: dates and timestamps are stored as text.
//
// The database is opened in WAL mode so that history reads do not block a
// concurrent append.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and
// migrates the schema. Use ":memory:" for a throwaway database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == ":memory:" {
		// each pooled connection would otherwise get its own database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Append inserts rows in a single transaction.
func (s *SQLiteStore) Append(ctx context.Context, rows []series.ForecastRow, observedAt time.Time) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	created := stamp(observedAt).Format(CreatedAtLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("append: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO forecasts (date, yhat_solar, yhat_load, net_demand, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("append: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if r.Date.IsZero() {
			return 0, fmt.Errorf("append: row without date")
		}
		if _, err := stmt.ExecContext(ctx,
			r.Date.Format(series.DateLayout), r.YhatSolar, r.YhatLoad, r.NetDemand, created); err != nil {
			return 0, fmt.Errorf("append: insert %s: %w", r.Date.Format(series.DateLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("append: commit: %w", err)
	}
	return len(rows), nil
}

// Recent returns up to limit rows, most recent date first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]PersistedForecast, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, yhat_solar, yhat_load, net_demand, created_at
		FROM forecasts
		ORDER BY date DESC, id DESC
		LIMIT ?`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("recent: %w", err)
	}
	defer rows.Close()
	return scanSQLite(rows)
}

// ForDate returns the rows stored for day, newest first.
func (s *SQLiteStore) ForDate(ctx context.Context, day time.Time) ([]PersistedForecast, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, yhat_solar, yhat_load, net_demand, created_at
		FROM forecasts
		WHERE date = ?
		ORDER BY id DESC`, series.Day(day).Format(series.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("for date: %w", err)
	}
	defer rows.Close()
	return scanSQLite(rows)
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanSQLite(rows *sql.Rows) ([]PersistedForecast, error) {
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
