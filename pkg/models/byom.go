package models

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/HatiCode/solariq/pkg/series"
)

// BYOMModel delegates fitting and prediction to an external HTTP service,
// allowing any forecasting library (Prophet, gradient boosting, neural
// models) to back a series.
//
// Contract:
//
//	POST {endpoint}/fit      {"metric","target","rows":[{"date":"YYYY-MM-DD", <col>: <value>...}]}
//	                      -> {"state": <any JSON>}
//	POST {endpoint}/predict  {"metric","state","start":"YYYY-MM-DD","horizonDays":N}
//	                      -> {"values":[N numbers]}
//
// The service's state is opaque here and persisted verbatim with the model.
type BYOMModel struct {
	endpoint string
	metric   string
	columns  []string
	client   *http.Client

	fitted bool
	state  byomState
}

type byomState struct {
	LastDate time.Time       `json:"last_date"`
	Remote   json.RawMessage `json:"remote"`
}

type byomFitRequest struct {
	Metric string           `json:"metric"`
	Target string           `json:"target"`
	Rows   []map[string]any `json:"rows"`
}

type byomFitResponse struct {
	State json.RawMessage `json:"state"`
}

type byomPredictRequest struct {
	Metric      string          `json:"metric"`
	State       json.RawMessage `json:"state"`
	Start       string          `json:"start"`
	HorizonDays int             `json:"horizonDays"`
}

type byomPredictResponse struct {
	Metric string    `json:"metric"`
	Values []float64 `json:"values"`
}

// NewBYOMModel creates a model backed by the service at endpoint. columns
// restricts the features sent to the service; nil sends every column.
func NewBYOMModel(endpoint, metric string, columns []string) *BYOMModel {
	return NewBYOMModelWithClient(endpoint, metric, columns, NewBYOMClient())
}

// NewBYOMModelWithClient is NewBYOMModel with a caller-owned client, so
// instances created per training call share one connection pool.
func NewBYOMModelWithClient(endpoint, metric string, columns []string, client *http.Client) *BYOMModel {
	if client == nil {
		client = NewBYOMClient()
	}
	return &BYOMModel{
		endpoint: strings.TrimRight(endpoint, "/"),
		metric:   metric,
		columns:  columns,
		client:   client,
	}
}

// NewBYOMClient returns the HTTP client used to reach a BYOM service.
func NewBYOMClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConnsPerHost: 2,
		},
	}
}

// HTTPClient returns the client the model calls the service with.
func (m *BYOMModel) HTTPClient() *http.Client { return m.client }

// Name returns the model identifier.
func (m *BYOMModel) Name() string { return "byom" }

// Features returns the configured columns.
func (m *BYOMModel) Features() []string { return m.columns }

// MinSamples returns the default floor.
func (m *BYOMModel) MinSamples() int { return 2 }

// Train posts the training table to the service's /fit endpoint.
func (m *BYOMModel) Train(ctx context.Context, history FeatureFrame) error {
	if history.Len() == 0 {
		return fmt.Errorf("byom: history cannot be empty")
	}

	rows := make([]map[string]any, history.Len())
	for i, row := range history.Rows {
		r := make(map[string]any, len(row)+1)
		for k, v := range row {
			r[k] = v
		}
		r["date"] = history.Dates[i].Format(series.DateLayout)
		rows[i] = r
	}

	var resp byomFitResponse
	req := byomFitRequest{Metric: m.metric, Target: history.Target, Rows: rows}
	if err := m.post(ctx, "/fit", req, &resp); err != nil {
		return err
	}
	if len(resp.State) == 0 {
		return fmt.Errorf("byom: fit response has no state")
	}

	m.state = byomState{LastDate: series.Day(history.LastDate()), Remote: resp.State}
	m.fitted = true
	return nil
}

// Predict asks the service for horizonDays values after the last training date.
func (m *BYOMModel) Predict(ctx context.Context, horizonDays int) (Forecast, error) {
	if !m.fitted {
		return Forecast{}, ErrNotTrained
	}
	days := futureDays(m.state.LastDate, horizonDays)
	if len(days) == 0 {
		return Forecast{Metric: m.metric, Points: []series.TimePoint{}}, nil
	}

	req := byomPredictRequest{
		Metric:      m.metric,
		State:       m.state.Remote,
		Start:       days[0].Format(series.DateLayout),
		HorizonDays: horizonDays,
	}
	var resp byomPredictResponse
	if err := m.post(ctx, "/predict", req, &resp); err != nil {
		return Forecast{}, err
	}

	if len(resp.Values) != horizonDays {
		return Forecast{}, fmt.Errorf("byom: expected %d predictions, got %d", horizonDays, len(resp.Values))
	}

	points := make([]series.TimePoint, horizonDays)
	for i, v := range resp.Values {
		points[i] = series.TimePoint{Date: days[i], Value: clampNonNegative(v)}
	}
	return Forecast{Metric: m.metric, Points: points}, nil
}

// State serializes the remote state and last training date.
func (m *BYOMModel) State() ([]byte, error) {
	if !m.fitted {
		return nil, ErrNotTrained
	}
	return json.Marshal(m.state)
}

// Restore loads a state produced by State.
func (m *BYOMModel) Restore(state []byte) error {
	var st byomState
	if err := json.Unmarshal(state, &st); err != nil {
		return fmt.Errorf("byom: decode state: %w", err)
	}
	m.state = st
	m.fitted = true
	return nil
}

func (m *BYOMModel) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("byom: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("byom: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("byom: http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("byom: http %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("byom: decode response: %w", err)
	}
	return nil
}
