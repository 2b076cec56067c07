// Package router configures HTTP routes for the forecaster's HTTP API.
//
// Routes configured:
//   - POST /predict - Forecast solar and load for a date range and store the rows
//   - GET /history - Most recent stored forecasts
//   - GET /today_status - Summary of today's stored forecasts
//   - GET /solar_status - Bill breakdown for one meter reading
//   - GET /nasa_data - Daily weather observations for a location
//   - GET / - Service name and route listing
//   - GET /healthz - Health check endpoint (503 when the result store is unreachable)
//   - GET /metrics - Prometheus metrics endpoint
//
// Errors are returned as {"error": "<message>"}. Input errors map to 400,
// weather provider failures to 502 and everything else to 500. Every route
// runs behind the request ID, logging, recovery, CORS and rate limit
// middleware.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/solariq/pkg/httpx"
	"github.com/HatiCode/solariq/pkg/series"
	"github.com/HatiCode/solariq/pkg/storage"
	"github.com/HatiCode/solariq/pkg/tariff"
	"github.com/HatiCode/solariq/pkg/weather"
)

// Default /nasa_data location.
const (
	DefaultLatitude  = 12.97
	DefaultLongitude = 77.59
)

// readTimeout bounds /history and /today_status.
const readTimeout = 5 * time.Second

// maxBodyBytes caps the /predict request body.
const maxBodyBytes = 1 << 20

// Service is the forecaster as seen by the HTTP layer.
type Service interface {
	Predict(ctx context.Context, start, end time.Time) (series.Result, error)
	History(ctx context.Context) ([]storage.PersistedForecast, error)
	Today(ctx context.Context) (storage.Summary, error)
	SolarStatus(category string, avgPowerKW, generation, gridImport, gridExport float64) tariff.BillBreakdown
	Weather(ctx context.Context, lat, lon float64, start, end time.Time) ([]weather.Observation, error)
}

// Options configures SetupRoutes.
type Options struct {
	PredictTimeout time.Duration
	// HealthCheck backs /healthz; nil always reports healthy.
	HealthCheck func(ctx context.Context) error
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer       prometheus.Gatherer
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	// Now is the clock for /nasa_data defaults; time.Now when nil.
	Now func() time.Time
}

type predictRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type handlers struct {
	svc    Service
	opts   Options
	logger *slog.Logger
}

// SetupRoutes configures HTTP endpoints for the forecaster and wraps them in
// the middleware chain.
func SetupRoutes(svc Service, opts Options, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PredictTimeout <= 0 {
		opts.PredictTimeout = 60 * time.Second
	}
	if opts.HealthCheck == nil {
		opts.HealthCheck = func(context.Context) error { return nil }
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	h := &handlers{svc: svc, opts: opts, logger: logger}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /predict", h.predict)
	mux.HandleFunc("GET /history", h.history)
	mux.HandleFunc("GET /today_status", h.todayStatus)
	mux.HandleFunc("GET /solar_status", h.solarStatus)
	mux.HandleFunc("GET /nasa_data", h.nasaData)
	mux.HandleFunc("GET /{$}", h.index)

	// Health check endpoint
	mux.Handle("GET /healthz", httpx.HealthHandlerWithCheck(opts.HealthCheck))

	// Prometheus metrics endpoint
	mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	return httpx.Chain(mux,
		httpx.RequestIDMiddleware(),
		httpx.LoggingMiddleware(logger),
		httpx.RecoveryMiddleware(logger),
		httpx.CORSMiddleware(opts.CORSOrigins),
		httpx.RateLimitMiddleware(opts.RateLimitRPS, opts.RateLimitBurst),
	)
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"service": "solariq forecaster",
		"routes": []string{
			"POST /predict",
			"GET /history",
			"GET /today_status",
			"GET /solar_status",
			"GET /nasa_data",
			"GET /healthz",
			"GET /metrics",
		},
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) predict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: request body must be JSON with start_date and end_date", series.ErrInvalidInput))
		return
	}

	start, err := series.ParseDate(req.StartDate)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("start_date: %w", err))
		return
	}
	end, err := series.ParseDate(req.EndDate)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("end_date: %w", err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.PredictTimeout)
	defer cancel()

	result, err := h.svc.Predict(ctx, start, end)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	rows, err := h.svc.History(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []storage.PersistedForecast{}
	}
	h.writeJSON(w, http.StatusOK, rows)
}

func (h *handlers) todayStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	summary, err := h.svc.Today(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *handlers) solarStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	category := q.Get("category")
	if category == "" {
		category = "domestic"
	}
	avgPower, err := floatParam(q.Get("avg_power"), "avg_power", 5, false)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	generation, err := floatParam(q.Get("generation"), "generation", 0, true)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	gridImport, err := floatParam(q.Get("grid_import"), "grid_import", 0, true)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	gridExport, err := floatParam(q.Get("grid_export"), "grid_export", 0, true)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, h.svc.SolarStatus(category, avgPower, generation, gridImport, gridExport))
}

func (h *handlers) nasaData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, err := floatParam(q.Get("lat"), "lat", DefaultLatitude, false)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	lon, err := floatParam(q.Get("lon"), "lon", DefaultLongitude, false)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	today := series.Day(h.opts.Now())
	start, err := compactDateParam(q.Get("start"), "start", today.AddDate(0, 0, -7))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	end, err := compactDateParam(q.Get("end"), "end", today)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	obs, err := h.svc.Weather(r.Context(), lat, lon, start, end)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if obs == nil {
		obs = []weather.Observation{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": obs})
}

// writeError maps err onto a status code and writes the error payload.
func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"request_id", httpx.RequestIDFrom(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	httpx.WriteError(w, status, err)
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	if err := httpx.WriteJSON(w, status, v); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, series.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, weather.ErrExternalService):
		return http.StatusBadGateway
	default:
		// training failures, insufficient history and store errors
		return http.StatusInternalServerError
	}
}

func floatParam(raw, name string, def float64, required bool) (float64, error) {
	if raw == "" {
		if required {
			return 0, fmt.Errorf("%w: %s is required", series.ErrInvalidInput, name)
		}
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s must be a number, got %q", series.ErrInvalidInput, name, raw)
	}
	return v, nil
}

func compactDateParam(raw, name string, def time.Time) (time.Time, error) {
	if raw == "" {
		return def, nil
	}
	t, err := time.Parse(weather.CompactLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYYMMDD, got %q", series.ErrInvalidInput, name, raw)
	}
	return t, nil
}
