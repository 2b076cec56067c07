package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/tidwall/gjson"
)

// HTTPAdapter calls a REST endpoint, such as an inverter vendor portal or a
// smart-meter API, and extracts readings with gjson path expressions.
//
// Body and header values are templates with these variables, plus any
// TemplateVars:
//
//	{{.WindowSeconds}} {{.Step}}
//	{{.Start}} {{.End}}                (Unix seconds)
//	{{.StartRFC3339}} {{.EndRFC3339}}
//	{{.StartDate}} {{.EndDate}}        (YYYY-MM-DD)
//
// Example for a portal returning {"readings":[{"day":"2025-01-01","kwh":21.4}]}:
//
//	adapter := &HTTPAdapter{
//	    URL:             "https://portal.example.com/api/energy?from={{.StartDate}}",
//	    Headers:         map[string]string{"Authorization": "Bearer {{.Token}}"},
//	    ValuePath:       "readings.#.kwh",
//	    TimestampPath:   "readings.#.day",
//	    TimestampFormat: "date",
//	}
type HTTPAdapter struct {
	// URL is the endpoint to call. It may contain template variables.
	URL string

	// Method defaults to GET.
	Method string

	// Headers are extra request headers; values are templates.
	Headers map[string]string

	// Body is the request body template for POST/PUT.
	Body string

	// ValuePath is the gjson path of the values, e.g. "data.#.value".
	ValuePath string

	// TimestampPath is the gjson path of the timestamps. It must yield as
	// many elements as ValuePath.
	TimestampPath string

	// TimestampFormat is one of "rfc3339" (default), "date" (YYYY-MM-DD),
	// "unix" or "unix_milli".
	TimestampFormat string

	// StepSeconds is exposed to templates as {{.Step}}; daily when <= 0.
	StepSeconds int

	// HTTPClient is optional; if nil a client with a 10s timeout is used.
	HTTPClient *http.Client

	// TemplateVars are custom template variables such as tokens.
	TemplateVars map[string]string
}

func (h *HTTPAdapter) Name() string { return "http" }

// Collect implements Adapter.
func (h *HTTPAdapter) Collect(ctx context.Context, windowSeconds int) (*DataFrame, error) {
	if err := h.ValidateConfig(); err != nil {
		return &DataFrame{}, fmt.Errorf("http adapter: %w", err)
	}

	step := stepOrDaily(h.StepSeconds)
	start, end := window(time.Now(), windowSeconds)

	data := map[string]any{
		"WindowSeconds": windowSeconds,
		"Start":         start.Unix(),
		"End":           end.Unix(),
		"Step":          step,
		"StartRFC3339":  start.Format(time.RFC3339),
		"EndRFC3339":    end.Format(time.RFC3339),
		"StartDate":     start.Format(time.DateOnly),
		"EndDate":       end.Format(time.DateOnly),
	}
	for k, v := range h.TemplateVars {
		data[k] = v
	}

	target, err := renderTemplate(h.URL, data)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("render url template: %w", err)
	}

	var body io.Reader
	if h.Body != "" {
		rendered, err := renderTemplate(h.Body, data)
		if err != nil {
			return &DataFrame{}, fmt.Errorf("render body template: %w", err)
		}
		body = strings.NewReader(rendered)
	}

	method := h.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range h.Headers {
		rendered, err := renderTemplate(value, data)
		if err != nil {
			return &DataFrame{}, fmt.Errorf("render header %s: %w", key, err)
		}
		req.Header.Set(key, rendered)
	}

	cli := h.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	resp, err := cli.Do(req)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &DataFrame{}, fmt.Errorf("http status %d: %s", resp.StatusCode, string(msg))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return &DataFrame{}, fmt.Errorf("read response: %w", err)
	}

	values := gjson.GetBytes(payload, h.ValuePath)
	if !values.Exists() {
		return &DataFrame{}, fmt.Errorf("value path %q not found in response", h.ValuePath)
	}
	timestamps := gjson.GetBytes(payload, h.TimestampPath)
	if !timestamps.Exists() {
		return &DataFrame{}, fmt.Errorf("timestamp path %q not found in response", h.TimestampPath)
	}

	valArray, tsArray := values.Array(), timestamps.Array()
	// a "#" query over objects without the field yields an empty array
	if len(tsArray) == 0 && len(valArray) > 0 {
		return &DataFrame{}, fmt.Errorf("timestamp path %q matched no elements", h.TimestampPath)
	}
	if len(valArray) == 0 && len(tsArray) > 0 {
		return &DataFrame{}, fmt.Errorf("value path %q matched no elements", h.ValuePath)
	}
	if len(valArray) != len(tsArray) {
		return &DataFrame{}, fmt.Errorf("value count (%d) != timestamp count (%d)", len(valArray), len(tsArray))
	}

	rows := make([]Row, 0, len(valArray))
	for i := range valArray {
		ts, err := h.parseTimestamp(tsArray[i])
		if err != nil {
			return &DataFrame{}, fmt.Errorf("parse timestamp[%d]: %w", i, err)
		}
		rows = append(rows, Row{"ts": ts, "value": valArray[i].Float()})
	}

	return &DataFrame{Rows: sortAndFormat(rows)}, nil
}

func (h *HTTPAdapter) parseTimestamp(value gjson.Result) (time.Time, error) {
	switch h.TimestampFormat {
	case "", "rfc3339":
		return time.Parse(time.RFC3339, value.String())
	case "date":
		return time.Parse(time.DateOnly, value.String())
	case "unix":
		return time.Unix(int64(value.Float()), 0).UTC(), nil
	case "unix_milli":
		return time.UnixMilli(int64(value.Float())).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp format: %s", h.TimestampFormat)
	}
}

func renderTemplate(tmplStr string, data map[string]any) (string, error) {
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmpl, err := template.New("").Option("missingkey=error").Parse(tmplStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ValidateConfig checks that the adapter can issue a request.
func (h *HTTPAdapter) ValidateConfig() error {
	if h.URL == "" {
		return errors.New("url is required")
	}
	if h.ValuePath == "" {
		return errors.New("valuePath is required")
	}
	if h.TimestampPath == "" {
		return errors.New("timestampPath is required")
	}

	switch h.TimestampFormat {
	case "", "rfc3339", "date", "unix", "unix_milli":
		return nil
	default:
		return fmt.Errorf("invalid timestampFormat: %s (must be rfc3339, date, unix, or unix_milli)", h.TimestampFormat)
	}
}
