package features

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrMissingColumn is returned when a projection asks for a column the
// frame does not carry.
var ErrMissingColumn = errors.New("missing column")

// Frame is a date-indexed feature table. Dates and Rows are parallel and
// sorted ascending by date.
type Frame struct {
	Target string               `json:"target"`
	Dates  []time.Time          `json:"dates"`
	Rows   []map[string]float64 `json:"rows"`
}

// Len returns the number of rows.
func (f Frame) Len() int { return len(f.Rows) }

// LastDate returns the final row's date, or the zero time.
func (f Frame) LastDate() time.Time {
	if len(f.Dates) == 0 {
		return time.Time{}
	}
	return f.Dates[len(f.Dates)-1]
}

// Column returns the values of one column in row order.
func (f Frame) Column(name string) ([]float64, error) {
	out := make([]float64, len(f.Rows))
	for i, row := range f.Rows {
		v, ok := row[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q at row %d", ErrMissingColumn, name, i)
		}
		out[i] = v
	}
	return out, nil
}

// Select projects the frame onto columns, always keeping the target. A nil
// columns slice keeps every column.
func (f Frame) Select(columns []string) (Frame, error) {
	if columns == nil {
		return f.clone(), nil
	}

	keep := append([]string{f.Target}, columns...)
	out := Frame{
		Target: f.Target,
		Dates:  append([]time.Time(nil), f.Dates...),
		Rows:   make([]map[string]float64, len(f.Rows)),
	}
	for i, row := range f.Rows {
		projected := make(map[string]float64, len(keep))
		for _, c := range keep {
			v, ok := row[c]
			if !ok {
				return Frame{}, fmt.Errorf("%w: %q at %s", ErrMissingColumn, c, f.Dates[i].Format("2006-01-02"))
			}
			projected[c] = v
		}
		out.Rows[i] = projected
	}
	return out, nil
}

// Union merges two frames keyed by date. Rows of other replace rows of f
// for the same date. The result is sorted by date.
func (f Frame) Union(other Frame) Frame {
	target := f.Target
	if target == "" {
		target = other.Target
	}

	byDay := make(map[int64]map[string]float64, len(f.Rows)+len(other.Rows))
	for i, d := range f.Dates {
		byDay[d.Unix()] = f.Rows[i]
	}
	for i, d := range other.Dates {
		byDay[d.Unix()] = other.Rows[i]
	}

	keys := make([]int64, 0, len(byDay))
	for k := range byDay {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := Frame{
		Target: target,
		Dates:  make([]time.Time, len(keys)),
		Rows:   make([]map[string]float64, len(keys)),
	}
	for i, k := range keys {
		out.Dates[i] = time.Unix(k, 0).UTC()
		out.Rows[i] = copyRow(byDay[k])
	}
	return out
}

// Tail returns the last n rows.
func (f Frame) Tail(n int) Frame {
	if n >= len(f.Rows) {
		return f.clone()
	}
	if n < 0 {
		n = 0
	}
	start := len(f.Rows) - n
	out := Frame{Target: f.Target, Dates: append([]time.Time(nil), f.Dates[start:]...)}
	for _, row := range f.Rows[start:] {
		out.Rows = append(out.Rows, copyRow(row))
	}
	return out
}

func (f Frame) clone() Frame {
	out := Frame{
		Target: f.Target,
		Dates:  append([]time.Time(nil), f.Dates...),
		Rows:   make([]map[string]float64, len(f.Rows)),
	}
	for i, row := range f.Rows {
		out.Rows[i] = copyRow(row)
	}
	return out
}

func copyRow(row map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
