package models

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/HatiCode/solariq/pkg/features"
	"github.com/HatiCode/solariq/pkg/series"
)

// AutoregressiveModel regresses each day's value on the previous k values:
//
//	y(t) = c + a1·y(t-1) + ... + ak·y(t-k)
//
// It reads only lag_1..lag_k from the feature frame. Forecasts are produced
// recursively: each predicted day becomes lag_1 of the next. Predictions are
// clamped to be non-negative.
type AutoregressiveModel struct {
	metric string
	lags   int
	lambda float64

	fitted bool
	state  arState
}

type arState struct {
	Lags   int       `json:"lags"`
	Coeffs []float64 `json:"coeffs"`

	// Tail holds the last Lags observed values, oldest first
	Tail []float64 `json:"tail"`

	LastDate       time.Time `json:"last_date"`
	ResidualStdDev float64   `json:"residual_std_dev"`
}

// NewAutoregressiveModel creates an untrained model with lags lag terms.
func NewAutoregressiveModel(metric string, lags int) *AutoregressiveModel {
	if lags < 0 {
		lags = 0
	}
	return &AutoregressiveModel{metric: metric, lags: lags, lambda: defaultRidge}
}

// Name returns the model identifier.
func (m *AutoregressiveModel) Name() string { return "autoregressive" }

// Features returns lag_1..lag_k.
func (m *AutoregressiveModel) Features() []string { return features.LagColumns(m.lags) }

// MinSamples requires one more row than lag coefficients.
func (m *AutoregressiveModel) MinSamples() int {
	if m.lags+1 < 2 {
		return 2
	}
	return m.lags + 1
}

// Train fits the lag coefficients on history.
func (m *AutoregressiveModel) Train(ctx context.Context, history FeatureFrame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := history.Len()
	if n < m.MinSamples() {
		return fmt.Errorf("autoregressive: need at least %d rows, got %d", m.MinSamples(), n)
	}

	y, err := history.Column(history.Target)
	if err != nil {
		return fmt.Errorf("autoregressive: %w", err)
	}

	cols := m.Features()
	lagValues := make([][]float64, len(cols))
	for i, c := range cols {
		if lagValues[i], err = history.Column(c); err != nil {
			return fmt.Errorf("autoregressive: %w", err)
		}
	}

	design := make([][]float64, n)
	for r := range n {
		x := make([]float64, 0, m.lags+1)
		x = append(x, 1)
		for i := range cols {
			x = append(x, lagValues[i][r])
		}
		design[r] = x
	}

	coeffs, resid, err := fitRidge(design, y, m.lambda)
	if err != nil {
		return fmt.Errorf("autoregressive: %w", err)
	}

	// last row holds y(t), y(t-1)..y(t-k); keep the newest k, oldest first
	last := n - 1
	window := make([]float64, 0, m.lags+1)
	for i := m.lags - 1; i >= 0; i-- {
		window = append(window, lagValues[i][last])
	}
	window = append(window, y[last])

	m.state = arState{
		Lags:           m.lags,
		Coeffs:         coeffs,
		Tail:           window[1:],
		LastDate:       series.Day(history.LastDate()),
		ResidualStdDev: resid,
	}
	m.fitted = true
	return nil
}

// Predict forecasts horizonDays days after the last training date.
func (m *AutoregressiveModel) Predict(ctx context.Context, horizonDays int) (Forecast, error) {
	if !m.fitted {
		return Forecast{}, ErrNotTrained
	}
	if err := ctx.Err(); err != nil {
		return Forecast{}, err
	}

	k := m.state.Lags
	window := append([]float64(nil), m.state.Tail...)
	days := futureDays(m.state.LastDate, horizonDays)
	points := make([]series.TimePoint, len(days))

	for h, d := range days {
		yhat := m.state.Coeffs[0]
		for i := 1; i <= k; i++ {
			yhat += m.state.Coeffs[i] * window[len(window)-i]
		}
		yhat = clampNonNegative(yhat)
		points[h] = series.TimePoint{Date: d, Value: yhat}

		if k > 0 {
			window = append(window[1:], yhat)
		}
	}

	return Forecast{Metric: m.metric, Points: points}, nil
}

// State serializes coefficients and the observation tail.
func (m *AutoregressiveModel) State() ([]byte, error) {
	if !m.fitted {
		return nil, ErrNotTrained
	}
	return json.Marshal(m.state)
}

// Restore loads a state produced by State. The lag count of the state wins
// over the constructor argument.
func (m *AutoregressiveModel) Restore(state []byte) error {
	var st arState
	if err := json.Unmarshal(state, &st); err != nil {
		return fmt.Errorf("autoregressive: decode state: %w", err)
	}
	if len(st.Coeffs) != st.Lags+1 || len(st.Tail) != st.Lags {
		return fmt.Errorf("autoregressive: inconsistent state (lags=%d coeffs=%d tail=%d)",
			st.Lags, len(st.Coeffs), len(st.Tail))
	}
	m.lags = st.Lags
	m.state = st
	m.fitted = true
	return nil
}

// Coefficients returns intercept followed by lag_1..lag_k weights.
func (m *AutoregressiveModel) Coefficients() []float64 {
	return append([]float64(nil), m.state.Coeffs...)
}
