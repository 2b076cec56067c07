package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/HatiCode/solariq/pkg/series"
)

// CreatedAtLayout is the text layout of PersistedForecast.CreatedAt in
// durable backends and JSON.
const CreatedAtLayout = "2006-01-02 15:04:05"

// DefaultRecentLimit caps Recent when the caller passes limit <= 0.
const DefaultRecentLimit = 100

// PersistedForecast is one stored forecast row. Rows are never updated;
// forecasting the same date twice stores two rows.
type PersistedForecast struct {
	ID        int64
	Date      time.Time
	YhatSolar float64
	YhatLoad  float64
	NetDemand float64
	CreatedAt time.Time
}

// MarshalJSON renders dates in the stored text layouts.
func (p PersistedForecast) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID        int64   `json:"id"`
		Date      string  `json:"date"`
		YhatSolar float64 `json:"yhat_solar"`
		YhatLoad  float64 `json:"yhat_load"`
		NetDemand float64 `json:"net_demand"`
		CreatedAt string  `json:"created_at"`
	}{
		ID:        p.ID,
		Date:      p.Date.Format(series.DateLayout),
		YhatSolar: p.YhatSolar,
		YhatLoad:  p.YhatLoad,
		NetDemand: p.NetDemand,
		CreatedAt: p.CreatedAt.UTC().Format(CreatedAtLayout),
	})
}

// Store persists forecast rows. Implementations must be safe for concurrent
// use.
type Store interface {
	// Append inserts rows stamped with observedAt and returns how many were
	// written. SQL backends write the batch atomically.
	Append(ctx context.Context, rows []series.ForecastRow, observedAt time.Time) (int, error)

	// Recent returns up to limit rows, most recent date first and newest
	// insert first within a date. limit <= 0 means DefaultRecentLimit.
	Recent(ctx context.Context, limit int) ([]PersistedForecast, error)

	// ForDate returns every row stored for one calendar day, newest first.
	ForDate(ctx context.Context, day time.Time) ([]PersistedForecast, error)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	return limit
}

// decodeText fills the date fields of p from their stored text.
func decodeText(p *PersistedForecast, date, createdAt string) error {
	d, err := time.Parse(series.DateLayout, date)
	if err != nil {
		return fmt.Errorf("row %d: bad date %q: %w", p.ID, date, err)
	}
	c, err := time.Parse(CreatedAtLayout, createdAt)
	if err != nil {
		return fmt.Errorf("row %d: bad created_at %q: %w", p.ID, createdAt, err)
	}
	p.Date, p.CreatedAt = d, c
	return nil
}

// stamp truncates to whole seconds, the precision of the text column.
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
