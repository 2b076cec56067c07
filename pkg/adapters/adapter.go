// Package adapters provides the history sources that feed the forecaster
// with raw solar generation and load readings. Each source normalizes its
// data into a common DataFrame, which ToSeries then buckets into one value
// per UTC day.
//
// Available adapters:
//   - SampleAdapter: deterministic synthetic solar/load history
//   - PrometheusAdapter: query_range against the Prometheus HTTP API
//   - VictoriaMetricsAdapter: the same call against VictoriaMetrics
//   - HTTPAdapter: any REST API with JSON responses (e.g. an inverter portal)
//
// Adapters only pull and shape raw data; feature building and forecasting
// happen in the layers above.
package adapters

import (
	"context"
	"time"
)

// DaySeconds is the step used for daily history.
const DaySeconds = 24 * 60 * 60

// Row represents a single observation.
// Example: {"ts": "2025-10-25T00:00:00Z", "value": 412.7}
type Row map[string]any

// DataFrame is the tabular data returned by adapters. Rows are sorted by ts.
type DataFrame struct {
	Rows []Row
}

// Adapter is the interface every history source implements.
//
// Collect is synchronous and must respect context cancellation and
// deadlines.
type Adapter interface {
	// Collect fetches observations for the last windowSeconds and returns
	// them as a DataFrame.
	Collect(ctx context.Context, windowSeconds int) (*DataFrame, error)

	// Name returns a short identifier, e.g. "sample" or "prometheus".
	Name() string
}

// window returns the [start, end] range ending now for windowSeconds.
func window(now time.Time, windowSeconds int) (time.Time, time.Time) {
	end := now.UTC().Truncate(time.Second)
	return end.Add(-time.Duration(windowSeconds) * time.Second), end
}

func stepOrDaily(step int) int {
	if step <= 0 {
		return DaySeconds
	}
	return step
}
