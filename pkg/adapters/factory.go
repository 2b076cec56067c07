package adapters

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// New creates an adapter from its kind and a generic configuration map.
//
// Supported kinds:
//   - "sample": synthetic history; requires "series" (solar or load),
//     optional "seed"
//   - "prometheus": requires "query", optional "url"
//   - "victoriametrics": requires "query", optional "url"
//   - "http": requires "url", "valuePath" and "timestampPath"
//
// stepSeconds <= 0 selects a daily step.
func New(kind string, config map[string]string, stepSeconds int) (Adapter, error) {
	switch kind {
	case "sample":
		return newSample(config)
	case "prometheus":
		return newPrometheus(config, stepSeconds)
	case "victoriametrics":
		return newVictoriaMetrics(config, stepSeconds)
	case "http":
		return newHTTP(config, stepSeconds)
	default:
		return nil, fmt.Errorf("unknown adapter kind: %s (must be sample, prometheus, victoriametrics, or http)", kind)
	}
}

func newSample(config map[string]string) (Adapter, error) {
	name := config["series"]
	if _, ok := sampleShapes[name]; !ok {
		return nil, fmt.Errorf("sample adapter requires 'series' config of solar or load, got %q", name)
	}

	a := &SampleAdapter{Series: name}
	if s := config["seed"]; s != "" {
		seed, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid 'seed': %w", err)
		}
		a.Seed = seed
	}
	return a, nil
}

func newPrometheus(config map[string]string, stepSeconds int) (Adapter, error) {
	query := config["query"]
	if query == "" {
		return nil, fmt.Errorf("prometheus adapter requires 'query' config")
	}

	url := config["url"]
	if url == "" {
		url = "http://localhost:9090"
	}

	return &PrometheusAdapter{
		ServerURL:   url,
		Query:       query,
		StepSeconds: stepOrDaily(stepSeconds),
	}, nil
}

func newVictoriaMetrics(config map[string]string, stepSeconds int) (Adapter, error) {
	query := config["query"]
	if query == "" {
		return nil, fmt.Errorf("victoriametrics adapter requires 'query' config")
	}

	url := config["url"]
	if url == "" {
		url = "http://localhost:8428"
	}

	return &VictoriaMetricsAdapter{
		ServerURL:   url,
		Query:       query,
		StepSeconds: stepOrDaily(stepSeconds),
	}, nil
}

func newHTTP(config map[string]string, stepSeconds int) (Adapter, error) {
	a := &HTTPAdapter{
		URL:             config["url"],
		Method:          config["method"],
		Body:            config["body"],
		ValuePath:       config["valuePath"],
		TimestampPath:   config["timestampPath"],
		TimestampFormat: config["timestampFormat"],
		StepSeconds:     stepOrDaily(stepSeconds),
	}

	if headersJSON := config["headers"]; headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &a.Headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}
	if varsJSON := config["templateVars"]; varsJSON != "" {
		if err := json.Unmarshal([]byte(varsJSON), &a.TemplateVars); err != nil {
			return nil, fmt.Errorf("invalid 'templateVars' JSON: %w", err)
		}
	}

	if err := a.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http adapter: %w", err)
	}
	return a, nil
}
