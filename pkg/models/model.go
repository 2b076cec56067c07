// Package models provides the daily forecasting models used by SolarIQ and
// the Trainer that keeps their state self-updating across calls.
//
// A [Model] is one algorithm: it declares the feature columns it consumes,
// fits on a [FeatureFrame] and predicts a number of calendar days following
// the last training date. Models are deterministic for identical input; none
// of them draws random numbers.
//
// Available models:
//   - seasonal:       calendar features only (trend, annual harmonic, weekday)
//   - autoregressive: lag features only, predicted recursively
//   - byom:           fit/predict delegated to an external HTTP service
package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HatiCode/solariq/pkg/features"
	"github.com/HatiCode/solariq/pkg/series"
)

// FeatureFrame is the training table consumed by models.
type FeatureFrame = features.Frame

// Forecast is the output of Model.Predict: one point per day starting the
// day after the last training date.
type Forecast struct {
	Metric string
	Points []series.TimePoint
}

// Values returns the predicted values in date order.
func (f Forecast) Values() []float64 {
	out := make([]float64, len(f.Points))
	for i, p := range f.Points {
		out[i] = p.Value
	}
	return out
}

// Model is a forecasting algorithm for one daily series.
type Model interface {
	// Name returns the model identifier stored with its state.
	Name() string

	// Features lists the columns the model consumes besides the target.
	// nil means every column of the frame.
	Features() []string

	// MinSamples is the fewest training rows the model accepts.
	MinSamples() int

	// Train fits the model from scratch on history.
	Train(ctx context.Context, history FeatureFrame) error

	// Predict forecasts horizonDays days after the last training date.
	Predict(ctx context.Context, horizonDays int) (Forecast, error)

	// State serializes the fitted parameters.
	State() ([]byte, error)

	// Restore loads parameters produced by State.
	Restore(state []byte) error
}

// Factory creates an untrained Model instance.
type Factory func() Model

var (
	// ErrNotTrained is returned by Predict or State before Train or Restore.
	ErrNotTrained = errors.New("model not trained")
	// ErrUnknownModel is returned for unrecognized model names.
	ErrUnknownModel = errors.New("unknown model")
)

// TrainingError reports that a model could not be fit. No state is
// persisted when it is returned.
type TrainingError struct {
	Key      string
	Model    string
	Rows     int
	Required int
	Err      error
}

func (e *TrainingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("training %s model for %q failed: %v", e.Model, e.Key, e.Err)
	}
	return fmt.Sprintf("training %s model for %q failed: %d rows, need at least %d",
		e.Model, e.Key, e.Rows, e.Required)
}

func (e *TrainingError) Unwrap() error { return e.Err }

func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// futureDays returns horizonDays consecutive days following last.
func futureDays(last time.Time, horizonDays int) []time.Time {
	if horizonDays <= 0 {
		return nil
	}
	last = series.Day(last)
	out := make([]time.Time, horizonDays)
	for i := range out {
		out[i] = last.AddDate(0, 0, i+1)
	}
	return out
}
