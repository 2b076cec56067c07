// Package series holds the daily time-series primitives shared by the
// SolarIQ forecast pipeline: calendar days, raw observation series, merged
// forecast rows and the tagged result returned to callers.
//
// All dates are calendar days represented as midnight UTC. Use [Day] to
// normalize any timestamp before comparing or keying by date.
package series

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// DateLayout is the wire and storage format of a calendar day.
const DateLayout = "2006-01-02"

// ErrInvalidInput marks caller mistakes: missing or malformed dates, bad
// coordinates, ranges beyond the allowed horizon. HTTP handlers map it to 400.
var ErrInvalidInput = errors.New("invalid input")

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a calendar day.
// Failures wrap ErrInvalidInput.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: date is empty", ErrInvalidInput)
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidInput, s)
	}
	return t, nil
}

// DaysBetween returns the number of whole calendar days from a to b.
// The result is negative when b is before a.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// TimePoint is one daily observation or prediction.
type TimePoint struct {
	Date  time.Time
	Value float64
}

// Series is an ordered set of daily observations for one observable
// (e.g. "solar" or "load").
type Series struct {
	Name   string
	Points []TimePoint
}

// Len returns the number of points.
func (s Series) Len() int { return len(s.Points) }

// LastDate returns the date of the final point, or the zero time for an
// empty series.
func (s Series) LastDate() time.Time {
	if len(s.Points) == 0 {
		return time.Time{}
	}
	return s.Points[len(s.Points)-1].Date
}

// Validate checks that dates are strictly increasing and values are finite.
// Gaps between dates are allowed.
func (s Series) Validate() error {
	for i, p := range s.Points {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return fmt.Errorf("%w: series %q has non-finite value at %s",
				ErrInvalidInput, s.Name, p.Date.Format(DateLayout))
		}
		if i > 0 && !p.Date.After(s.Points[i-1].Date) {
			return fmt.Errorf("%w: series %q dates not strictly increasing at index %d (%s after %s)",
				ErrInvalidInput, s.Name, i, p.Date.Format(DateLayout), s.Points[i-1].Date.Format(DateLayout))
		}
	}
	return nil
}
