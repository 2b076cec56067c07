package adapters

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/HatiCode/solariq/pkg/series"
)

// DefaultSampleDays is the history length of SampleAdapter when the
// collection window is shorter than a day.
const DefaultSampleDays = 180

// Sample series kinds.
const (
	SampleSolar = "solar"
	SampleLoad  = "load"
)

// SampleAdapter generates a deterministic daily history ending yesterday
// (UTC). It stands in for a real source in demos and tests:
//
//	solar = clip(400 + 50·sin(linspace(0, 3π, n)) + 10·N(0,1), 300, 600)
//	load  = clip(380 + 40·cos(linspace(0, 2π, n)) +  8·N(0,1), 300, 500)
//
// The noise comes from a fixed per-series seed, so repeated calls with the
// same window and day return identical data.
type SampleAdapter struct {
	// Series is SampleSolar or SampleLoad.
	Series string
	// Seed overrides the per-series default seed when non-zero.
	Seed uint64
	// Now is the clock; time.Now when nil.
	Now func() time.Time
}

type sampleShape struct {
	base, amp, noise float64
	lo, hi           float64
	span             float64
	wave             func(float64) float64
	seed             uint64
}

var sampleShapes = map[string]sampleShape{
	SampleSolar: {base: 400, amp: 50, noise: 10, lo: 300, hi: 600, span: 3 * math.Pi, wave: math.Sin, seed: 42},
	SampleLoad:  {base: 380, amp: 40, noise: 8, lo: 300, hi: 500, span: 2 * math.Pi, wave: math.Cos, seed: 7},
}

func (s *SampleAdapter) Name() string { return "sample" }

// Collect implements Adapter. The window is rounded down to whole days.
func (s *SampleAdapter) Collect(ctx context.Context, windowSeconds int) (*DataFrame, error) {
	if err := ctx.Err(); err != nil {
		return &DataFrame{}, err
	}
	shape, ok := sampleShapes[s.Series]
	if !ok {
		return &DataFrame{}, fmt.Errorf("sample adapter: unknown series %q (must be solar or load)", s.Series)
	}

	n := windowSeconds / DaySeconds
	if n <= 0 {
		n = DefaultSampleDays
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	last := series.Day(now()).AddDate(0, 0, -1)
	first := last.AddDate(0, 0, -(n - 1))

	seed := shape.seed
	if s.Seed != 0 {
		seed = s.Seed
	}
	rng := rand.New(rand.NewPCG(seed, seed))

	rows := make([]Row, n)
	for i := range n {
		x := linspaceAt(shape.span, i, n)
		v := shape.base + shape.amp*shape.wave(x) + shape.noise*rng.NormFloat64()
		rows[i] = Row{
			"ts":    first.AddDate(0, 0, i).Format(time.RFC3339),
			"value": clip(v, shape.lo, shape.hi),
		}
	}
	return &DataFrame{Rows: rows}, nil
}

// linspaceAt returns the i-th of n evenly spaced points over [0, stop].
func linspaceAt(stop float64, i, n int) float64 {
	if n <= 1 {
		return 0
	}
	return stop * float64(i) / float64(n-1)
}

func clip(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
