package adapters

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/HatiCode/solariq/pkg/series"
)

// Aggregations accepted by ToSeries.
const (
	AggregateMean = "mean"
	AggregateSum  = "sum"
)

// ToSeries buckets df by UTC calendar day into a sorted series named name.
// Several readings on one day are combined with agg (mean or sum).
// Non-finite readings are skipped.
func ToSeries(df *DataFrame, name, agg string) (series.Series, error) {
	if agg != AggregateMean && agg != AggregateSum {
		return series.Series{}, fmt.Errorf("unknown aggregation %q (must be mean or sum)", agg)
	}
	out := series.Series{Name: name, Points: []series.TimePoint{}}
	if df == nil {
		return out, nil
	}

	type bucket struct {
		sum   float64
		count int
	}
	buckets := make(map[int64]*bucket)

	for i, row := range df.Rows {
		ts, err := rowTime(row["ts"])
		if err != nil {
			return series.Series{}, fmt.Errorf("row %d: %w", i, err)
		}
		v, err := rowValue(row["value"])
		if err != nil {
			return series.Series{}, fmt.Errorf("row %d: %w", i, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}

		key := series.Day(ts).Unix()
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		b.sum += v
		b.count++
	}

	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, k := range keys {
		b := buckets[k]
		v := b.sum
		if agg == AggregateMean {
			v /= float64(b.count)
		}
		out.Points = append(out.Points, series.TimePoint{Date: time.Unix(k, 0).UTC(), Value: v})
	}
	return out, nil
}

func rowTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		ts, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse ts: %w", err)
		}
		return ts, nil
	default:
		return time.Time{}, fmt.Errorf("unexpected ts type %T", v)
	}
}

func rowValue(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("parse value: %w", err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unexpected value type %T", v)
	}
}
