// Package features turns raw daily series into model-ready tables.
//
// A [Frame] holds one row per calendar day. Every row carries the target
// value under the target's name, deterministic calendar features derived
// from the date, and lag_1..lag_k, where lag_i is the value observed i rows
// earlier in the same series. Rows whose lags are not all defined are
// dropped; nothing is imputed.
package features

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/HatiCode/solariq/pkg/series"
)

// Calendar feature columns.
const (
	DayOfYear = "day_of_year"
	DayOfWeek = "day_of_week"
	Month     = "month"
	DoYSin    = "doy_sin"
	DoYCos    = "doy_cos"
	Weekend   = "weekend"
)

// CalendarColumns lists the calendar features in a stable order.
var CalendarColumns = []string{DayOfYear, DayOfWeek, Month, DoYSin, DoYCos, Weekend}

var (
	// ErrInsufficientHistory is returned when no row survives lag construction.
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrInvalidLagCount is returned for a negative lag count.
	ErrInvalidLagCount = errors.New("lag count must be >= 0")
)

// LagColumn returns the name of the i-th lag feature.
func LagColumn(i int) string {
	return fmt.Sprintf("lag_%d", i)
}

// LagColumns returns lag_1..lag_k.
func LagColumns(k int) []string {
	cols := make([]string, k)
	for i := range k {
		cols[i] = LagColumn(i + 1)
	}
	return cols
}

// Calendar returns the calendar features of a day.
func Calendar(date time.Time) map[string]float64 {
	d := series.Day(date)
	doy := float64(d.YearDay())
	angle := 2 * math.Pi * doy / 365.25
	weekday := d.Weekday()

	weekend := 0.0
	if weekday == time.Saturday || weekday == time.Sunday {
		weekend = 1
	}

	return map[string]float64{
		DayOfYear: doy,
		DayOfWeek: float64(weekday),
		Month:     float64(d.Month()),
		DoYSin:    math.Sin(angle),
		DoYCos:    math.Cos(angle),
		Weekend:   weekend,
	}
}

// Builder converts series into feature frames.
type Builder struct{}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// BuildFeatures builds a Frame for target from s with lagCount lag columns.
//
// For a valid series of n points it returns exactly n-lagCount rows. Lags
// are positional: lag_1 of a row is the previous point of the series even
// when the dates are not consecutive.
func (b *Builder) BuildFeatures(s series.Series, target string, lagCount int) (Frame, error) {
	if lagCount < 0 {
		return Frame{}, fmt.Errorf("%w: got %d", ErrInvalidLagCount, lagCount)
	}
	if err := s.Validate(); err != nil {
		return Frame{}, err
	}
	if target == "" {
		target = s.Name
	}

	n := len(s.Points)
	if n <= lagCount {
		return Frame{}, fmt.Errorf("%w: series %q has %d points, need more than %d for %d lags",
			ErrInsufficientHistory, s.Name, n, lagCount, lagCount)
	}

	frame := Frame{
		Target: target,
		Dates:  make([]time.Time, 0, n-lagCount),
		Rows:   make([]map[string]float64, 0, n-lagCount),
	}

	for i := lagCount; i < n; i++ {
		p := s.Points[i]
		row := Calendar(p.Date)
		row[target] = p.Value
		for lag := 1; lag <= lagCount; lag++ {
			row[LagColumn(lag)] = s.Points[i-lag].Value
		}
		frame.Dates = append(frame.Dates, series.Day(p.Date))
		frame.Rows = append(frame.Rows, row)
	}

	return frame, nil
}
