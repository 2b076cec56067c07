package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"
)

// PrometheusAdapter reads a daily series through the Prometheus HTTP API,
// e.g. `sum(increase(inverter_energy_wh_total[1d]))` for solar energy. It
// issues /api/v1/query_range and returns rows of the form:
//
//	{"ts": RFC3339 string, "value": float64}
//
// If the query returns several series, values at the same timestamp are
// summed.
type PrometheusAdapter struct {
	// ServerURL is the base URL, e.g. http://prometheus.monitoring.svc:9090
	ServerURL string
	// Query is the PromQL expression to evaluate.
	Query string
	// StepSeconds is the resolution; daily when <= 0.
	StepSeconds int
	// HTTPClient is optional; if nil a client with a 10s timeout is used.
	HTTPClient *http.Client
}

func (p *PrometheusAdapter) Name() string { return "prometheus" }

// Collect implements Adapter.
func (p *PrometheusAdapter) Collect(ctx context.Context, windowSeconds int) (*DataFrame, error) {
	if p.ServerURL == "" || p.Query == "" {
		return &DataFrame{}, errors.New("prometheus adapter: ServerURL and Query are required")
	}
	return queryRange(ctx, "prometheus", p.HTTPClient, p.ServerURL, p.Query, windowSeconds, p.StepSeconds)
}

// VictoriaMetricsAdapter reads a daily series through the
// Prometheus-compatible API of VictoriaMetrics.
type VictoriaMetricsAdapter struct {
	// ServerURL is the base URL, e.g. http://victoria-metrics:8428
	ServerURL string
	// Query is the MetricsQL/PromQL expression to evaluate.
	Query string
	// StepSeconds is the resolution; daily when <= 0.
	StepSeconds int
	// HTTPClient is optional; if nil a client with a 10s timeout is used.
	HTTPClient *http.Client
}

func (v *VictoriaMetricsAdapter) Name() string { return "victoria-metrics" }

// Collect implements Adapter.
func (v *VictoriaMetricsAdapter) Collect(ctx context.Context, windowSeconds int) (*DataFrame, error) {
	if v.ServerURL == "" || v.Query == "" {
		return &DataFrame{}, errors.New("victoria metrics adapter: ServerURL and Query are required")
	}
	return queryRange(ctx, "victoria-metrics", v.HTTPClient, v.ServerURL, v.Query, windowSeconds, v.StepSeconds)
}

func queryRange(ctx context.Context, source string, cli *http.Client, serverURL, query string, windowSeconds, stepSeconds int) (*DataFrame, error) {
	step := stepOrDaily(stepSeconds)
	start, end := window(time.Now(), windowSeconds)

	u, err := url.Parse(serverURL)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("invalid ServerURL: %w", err)
	}
	u.Path = "/api/v1/query_range"

	q := u.Query()
	q.Set("query", query)
	q.Set("start", strconv.FormatInt(start.Unix(), 10))
	q.Set("end", strconv.FormatInt(end.Unix(), 10))
	q.Set("step", strconv.Itoa(step))
	u.RawQuery = q.Encode()

	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &DataFrame{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := cli.Do(req)
	if err != nil {
		return &DataFrame{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &DataFrame{}, fmt.Errorf("%s: status %d", source, resp.StatusCode)
	}

	var pr PrometheusRangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return &DataFrame{}, fmt.Errorf("decode %s response: %w", source, err)
	}
	if pr.Status != "success" {
		return &DataFrame{}, fmt.Errorf("%s status: %s", source, pr.Status)
	}

	rows, err := AggregateRangeResult(pr.Data.Result)
	if err != nil {
		return &DataFrame{}, err
	}
	return &DataFrame{Rows: sortAndFormat(rows)}, nil
}

// PrometheusRangeResponse is a query_range response from Prometheus or a
// compatible server.
type PrometheusRangeResponse struct {
	Status string              `json:"status"`
	Data   PrometheusRangeData `json:"data"`
}

// PrometheusRangeData contains the result data from a range query.
type PrometheusRangeData struct {
	ResultType string                 `json:"resultType"`
	Result     []PrometheusRangeSerie `json:"result"`
}

// PrometheusRangeSerie represents a single time series in the result.
type PrometheusRangeSerie struct {
	Metric map[string]string `json:"metric"`
	// Values is an array of [ <unix_time_float>, "<value_string>" ]
	Values [][]any `json:"values"`
}

// AggregateRangeResult flattens series into rows, summing values at the same
// timestamp. Row timestamps are time.Time.
func AggregateRangeResult(series []PrometheusRangeSerie) ([]Row, error) {
	acc := make(map[int64]float64)
	for _, s := range series {
		for _, pair := range s.Values {
			if len(pair) != 2 {
				return nil, fmt.Errorf("invalid value pair length: %d", len(pair))
			}

			tsSec, err := unixSeconds(pair[0])
			if err != nil {
				return nil, err
			}
			val, err := sampleValue(pair[1])
			if err != nil {
				return nil, err
			}
			acc[tsSec] += val
		}
	}

	rows := make([]Row, 0, len(acc))
	for ts, v := range acc {
		rows = append(rows, Row{
			"ts":    time.Unix(ts, 0).UTC(),
			"value": v,
		})
	}
	return rows, nil
}

func unixSeconds(v any) (int64, error) {
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case json.Number:
		f, err := t.Float64()
		return int64(f), err
	default:
		return 0, fmt.Errorf("unexpected timestamp type %T", v)
	}
}

func sampleValue(v any) (float64, error) {
	switch vv := v.(type) {
	case string:
		f, err := strconv.ParseFloat(vv, 64)
		if err != nil {
			return 0, fmt.Errorf("parse value: %w", err)
		}
		return f, nil
	case float64:
		return vv, nil
	case json.Number:
		return vv.Float64()
	default:
		return 0, fmt.Errorf("unexpected value type %T", vv)
	}
}

// sortAndFormat orders rows by time and renders ts as RFC3339.
func sortAndFormat(rows []Row) []Row {
	sort.Slice(rows, func(i, j int) bool {
		return rows[i]["ts"].(time.Time).Before(rows[j]["ts"].(time.Time))
	})
	for i := range rows {
		rows[i]["ts"] = rows[i]["ts"].(time.Time).UTC().Format(time.RFC3339)
	}
	return rows
}
