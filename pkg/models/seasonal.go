package models

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/HatiCode/solariq/pkg/features"
	"github.com/HatiCode/solariq/pkg/series"
)

// SeasonalModel forecasts from the calendar alone, combining:
//   - Linear trend over the training span
//   - Annual seasonality (one sin/cos harmonic of day-of-year)
//   - Weekly seasonality (one offset per weekday, Sunday as baseline)
//
// **Recommended Usage:**
//   - Training data: several months of daily values (optimal: a year or more)
//   - Forecast horizon: days to a few months ahead
//   - Works best with: smooth annual cycles such as solar irradiance
//
// **Limitations:**
//   - Ignores recent level shifts that lag-based models would pick up
//   - The trend is extrapolated linearly and can drift on long horizons
//
// Components are enabled by history size: the harmonic needs at least 4
// rows and weekday offsets at least 14, so short histories degrade to a
// trend line instead of an ill-posed fit. Predictions are clamped to be
// non-negative.
type SeasonalModel struct {
	// metric is the name of the series being forecast
	metric string

	// lambda is the ridge penalty on non-intercept coefficients
	lambda float64

	fitted bool
	state  seasonalState
}

type seasonalState struct {
	// Origin anchors the trend term (t = 0)
	Origin time.Time `json:"origin"`

	// LastDate is the final training date; forecasts start the day after
	LastDate time.Time `json:"last_date"`

	Yearly bool `json:"yearly"`
	Weekly bool `json:"weekly"`

	// Coeffs are ordered intercept, trend, [sin, cos], [mon..sat]
	Coeffs []float64 `json:"coeffs"`

	// ResidualStdDev is the in-sample RMS error
	ResidualStdDev float64 `json:"residual_std_dev"`
}

const (
	seasonalMinRowsYearly = 4
	seasonalMinRowsWeekly = 14
)

// NewSeasonalModel creates an untrained seasonal model.
func NewSeasonalModel(metric string) *SeasonalModel {
	return &SeasonalModel{metric: metric, lambda: defaultRidge}
}

// Name returns the model identifier.
func (m *SeasonalModel) Name() string { return "seasonal" }

// Features returns the calendar columns the model reads.
func (m *SeasonalModel) Features() []string {
	return []string{features.DoYSin, features.DoYCos, features.DayOfWeek}
}

// MinSamples returns the minimum rows for a trend fit.
func (m *SeasonalModel) MinSamples() int { return 2 }

// Train fits the model on history.
func (m *SeasonalModel) Train(ctx context.Context, history FeatureFrame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := history.Len()
	if n < m.MinSamples() {
		return fmt.Errorf("seasonal: need at least %d rows, got %d", m.MinSamples(), n)
	}

	y, err := history.Column(history.Target)
	if err != nil {
		return fmt.Errorf("seasonal: %w", err)
	}

	st := seasonalState{
		Origin:   series.Day(history.Dates[0]),
		LastDate: series.Day(history.LastDate()),
		Yearly:   n >= seasonalMinRowsYearly,
		Weekly:   n >= seasonalMinRowsWeekly,
	}

	design := make([][]float64, n)
	for i, row := range history.Rows {
		x, err := st.design(history.Dates[i], row)
		if err != nil {
			return fmt.Errorf("seasonal: %w", err)
		}
		design[i] = x
	}

	coeffs, resid, err := fitRidge(design, y, m.lambda)
	if err != nil {
		return fmt.Errorf("seasonal: %w", err)
	}
	st.Coeffs = coeffs
	st.ResidualStdDev = resid

	m.state = st
	m.fitted = true
	return nil
}

// Predict forecasts horizonDays days after the last training date.
func (m *SeasonalModel) Predict(ctx context.Context, horizonDays int) (Forecast, error) {
	if !m.fitted {
		return Forecast{}, ErrNotTrained
	}
	if err := ctx.Err(); err != nil {
		return Forecast{}, err
	}

	days := futureDays(m.state.LastDate, horizonDays)
	points := make([]series.TimePoint, len(days))
	for i, d := range days {
		x, err := m.state.design(d, features.Calendar(d))
		if err != nil {
			return Forecast{}, fmt.Errorf("seasonal: %w", err)
		}
		var yhat float64
		for j, c := range m.state.Coeffs {
			yhat += c * x[j]
		}
		points[i] = series.TimePoint{Date: d, Value: clampNonNegative(yhat)}
	}

	return Forecast{Metric: m.metric, Points: points}, nil
}

// State serializes the fitted coefficients.
func (m *SeasonalModel) State() ([]byte, error) {
	if !m.fitted {
		return nil, ErrNotTrained
	}
	return json.Marshal(m.state)
}

// Restore loads coefficients produced by State.
func (m *SeasonalModel) Restore(state []byte) error {
	var st seasonalState
	if err := json.Unmarshal(state, &st); err != nil {
		return fmt.Errorf("seasonal: decode state: %w", err)
	}
	if want := st.width(); len(st.Coeffs) != want {
		return fmt.Errorf("seasonal: state has %d coefficients, want %d", len(st.Coeffs), want)
	}
	m.state = st
	m.fitted = true
	return nil
}

// ResidualStdDev returns the in-sample RMS error of the last fit.
func (m *SeasonalModel) ResidualStdDev() float64 { return m.state.ResidualStdDev }

func (st seasonalState) width() int {
	w := 2
	if st.Yearly {
		w += 2
	}
	if st.Weekly {
		w += 6
	}
	return w
}

func (st seasonalState) design(date time.Time, row map[string]float64) ([]float64, error) {
	x := make([]float64, 0, st.width())
	t := float64(series.DaysBetween(st.Origin, date)) / 365.25
	x = append(x, 1, t)

	if st.Yearly {
		sin, ok1 := row[features.DoYSin]
		cos, ok2 := row[features.DoYCos]
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%w: %s/%s", features.ErrMissingColumn, features.DoYSin, features.DoYCos)
		}
		x = append(x, sin, cos)
	}

	if st.Weekly {
		dow, ok := row[features.DayOfWeek]
		if !ok {
			return nil, fmt.Errorf("%w: %s", features.ErrMissingColumn, features.DayOfWeek)
		}
		for d := 1; d <= 6; d++ {
			if int(dow) == d {
				x = append(x, 1)
			} else {
				x = append(x, 0)
			}
		}
	}

	return x, nil
}
