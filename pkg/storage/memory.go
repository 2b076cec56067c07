package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/HatiCode/solariq/pkg/series"
)

// MemoryStore implements Store in process memory. It is safe for concurrent
// use by multiple goroutines. Rows are lost on restart; use SQLiteStore or
// PostgresStore for durable history.
type MemoryStore struct {
	mu     sync.RWMutex
	rows   []PersistedForecast
	nextID int64
}

// NewMemoryStore creates an empty in-memory result store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

// Append stores rows with sequential IDs.
func (s *MemoryStore) Append(ctx context.Context, rows []series.ForecastRow, observedAt time.Time) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	for _, r := range rows {
		if r.Date.IsZero() {
			return 0, fmt.Errorf("append: row without date")
		}
	}

	created := stamp(observedAt)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		s.rows = append(s.rows, PersistedForecast{
			ID:        s.nextID,
			Date:      series.Day(r.Date),
			YhatSolar: r.YhatSolar,
			YhatLoad:  r.YhatLoad,
			NetDemand: r.NetDemand,
			CreatedAt: created,
		})
		s.nextID++
	}
	return len(rows), nil
}

// Recent returns up to limit rows ordered by date then ID, both descending.
func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]PersistedForecast, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	out := append([]PersistedForecast(nil), s.rows...)
	s.mu.RUnlock()

	sortNewestFirst(out)
	if n := normalizeLimit(limit); len(out) > n {
		out = out[:n]
	}
	if out == nil {
		out = []PersistedForecast{}
	}
	return out, nil
}

// ForDate returns the rows for day, newest insert first.
func (s *MemoryStore) ForDate(ctx context.Context, day time.Time) ([]PersistedForecast, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	want := series.Day(day)
	out := []PersistedForecast{}

	s.mu.RLock()
	for _, r := range s.rows {
		if r.Date.Equal(want) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	return out, nil
}

// Len returns the number of stored rows.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func sortNewestFirst(rows []PersistedForecast) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.After(rows[j].Date)
		}
		return rows[i].ID > rows[j].ID
	})
}
