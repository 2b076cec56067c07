// Package main implements the forecast orchestration of the SolarIQ service.
//
// This file contains the Forecaster type which runs one forecast request
// end to end:
//
//	collect → buildFeatures → trainOrUpdate → predict → merge → append
//
// The solar and load series each have their own history source and Trainer.
// A request is handled synchronously; there is no background loop. Every
// stage is instrumented with Prometheus metrics and structured logs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/solariq/cmd/forecaster/metrics"
	"github.com/HatiCode/solariq/pkg/adapters"
	"github.com/HatiCode/solariq/pkg/features"
	"github.com/HatiCode/solariq/pkg/models"
	"github.com/HatiCode/solariq/pkg/series"
	"github.com/HatiCode/solariq/pkg/storage"
	"github.com/HatiCode/solariq/pkg/tariff"
	"github.com/HatiCode/solariq/pkg/weather"
)

// Series keys. They double as model store keys and metric labels.
const (
	SeriesSolar = "solar"
	SeriesLoad  = "load"
)

// Pipeline binds one series to its history source and trainer.
type Pipeline struct {
	Series  string
	Adapter adapters.Adapter
	Trainer *models.Trainer
}

// WeatherClient fetches daily weather observations.
type WeatherClient interface {
	Daily(ctx context.Context, lat, lon float64, start, end time.Time) ([]weather.Observation, error)
}

// Options tunes a Forecaster.
type Options struct {
	Lags           int
	HistoryDays    int
	Aggregation    string
	MaxHorizonDays int
	HistoryLimit   int
}

// Forecaster orchestrates forecast requests and serves the read-side
// operations over the result store, tariff table and weather client.
type Forecaster struct {
	solar   Pipeline
	load    Pipeline
	builder *features.Builder
	results storage.Store
	tariffs tariff.Table
	weather WeatherClient
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a new Forecaster. weather may be nil when the weather
// endpoint is not served.
func New(
	solar, load Pipeline,
	builder *features.Builder,
	results storage.Store,
	tariffs tariff.Table,
	weatherClient WeatherClient,
	opts Options,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Forecaster {
	if logger == nil {
		logger = slog.Default()
	}
	if builder == nil {
		builder = features.NewBuilder()
	}
	if opts.Aggregation == "" {
		opts.Aggregation = adapters.AggregateMean
	}
	if opts.HistoryDays <= 0 {
		opts.HistoryDays = adapters.DefaultSampleDays
	}

	return &Forecaster{
		solar:   solar,
		load:    load,
		builder: builder,
		results: results,
		tariffs: tariffs,
		weather: weatherClient,
		opts:    opts,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Predict forecasts solar and load for [start, end], persists the merged
// rows and returns them.
//
// An inverted range yields an empty result without training. An end date
// further than MaxHorizonDays from today is an input error. Nothing is
// trained or stored when validation fails.
func (f *Forecaster) Predict(ctx context.Context, start, end time.Time) (series.Result, error) {
	begin := time.Now()
	start, end = series.Day(start), series.Day(end)

	if start.After(end) {
		f.logger.Debug("inverted range, nothing to forecast",
			"start", start.Format(series.DateLayout), "end", end.Format(series.DateLayout))
		f.recordResult(0, 0)
		return series.NewResult(nil), nil
	}

	today := series.Day(f.now())
	if f.opts.MaxHorizonDays > 0 && series.DaysBetween(today, end) > f.opts.MaxHorizonDays {
		return series.Result{}, fmt.Errorf("%w: end_date %s is more than %d days ahead",
			series.ErrInvalidInput, end.Format(series.DateLayout), f.opts.MaxHorizonDays)
	}

	solar, err := f.forecastSeries(ctx, f.solar, end)
	if err != nil {
		return series.Result{}, err
	}
	load, err := f.forecastSeries(ctx, f.load, end)
	if err != nil {
		return series.Result{}, err
	}

	rows := series.Merge(solar.Points, load.Points, start, end)

	appended := 0
	if len(rows) > 0 {
		appended, err = f.results.Append(ctx, rows, f.now())
		if err != nil {
			f.recordError("store", "append_failed")
			return series.Result{}, fmt.Errorf("append results: %w", err)
		}
	}
	f.recordResult(len(rows), appended)

	f.logger.Info("forecast complete",
		"start", start.Format(series.DateLayout),
		"end", end.Format(series.DateLayout),
		"rows", len(rows),
		"appended", appended,
		"duration_ms", time.Since(begin).Milliseconds(),
	)

	return series.NewResult(rows), nil
}

// forecastSeries collects, trains and predicts one series up to end.
func (f *Forecaster) forecastSeries(ctx context.Context, p Pipeline, end time.Time) (models.Forecast, error) {
	s, err := f.collect(ctx, p)
	if err != nil {
		f.recordError("adapter", "collect_failed")
		return models.Forecast{}, fmt.Errorf("collect %s: %w", p.Series, err)
	}

	frame, err := f.builder.BuildFeatures(s, p.Series, f.opts.Lags)
	if err != nil {
		f.recordError("features", "build_failed")
		return models.Forecast{}, fmt.Errorf("build %s features: %w", p.Series, err)
	}
	f.logger.Debug("built features", "series", p.Series, "rows", frame.Len())

	start := time.Now()
	fm, err := p.Trainer.TrainOrUpdate(ctx, frame)
	if err != nil {
		f.recordError("model", "train_failed")
		return models.Forecast{}, fmt.Errorf("train %s: %w", p.Series, err)
	}
	if f.metrics != nil {
		f.metrics.RecordTrain(p.Series, time.Since(start).Seconds(), fm.Rows())
	}

	horizon := series.DaysBetween(fm.LastDate(), end)
	start = time.Now()
	fc, err := p.Trainer.Forecast(ctx, fm, horizon)
	if err != nil {
		f.recordError("model", "predict_failed")
		return models.Forecast{}, fmt.Errorf("predict %s: %w", p.Series, err)
	}
	if f.metrics != nil {
		f.metrics.RecordPredict(p.Series, time.Since(start).Seconds())
	}

	f.logger.Debug("predicted forecast",
		"series", p.Series,
		"model", fm.Model,
		"version", fm.Version,
		"horizon_days", horizon,
		"points", len(fc.Points),
	)
	return fc, nil
}

// collect retrieves the history window of one series as a daily series.
func (f *Forecaster) collect(ctx context.Context, p Pipeline) (series.Series, error) {
	start := time.Now()
	window := f.opts.HistoryDays * adapters.DaySeconds

	df, err := p.Adapter.Collect(ctx, window)
	if err != nil {
		return series.Series{}, err
	}
	s, err := adapters.ToSeries(df, p.Series, f.opts.Aggregation)
	if err != nil {
		return series.Series{}, err
	}

	duration := time.Since(start)
	if f.metrics != nil {
		f.metrics.RecordCollect(p.Series, duration.Seconds())
	}

	f.logger.Info("collected history",
		"series", p.Series,
		"adapter", p.Adapter.Name(),
		"rows", len(df.Rows),
		"days", s.Len(),
		"duration_ms", duration.Milliseconds(),
	)
	return s, nil
}

// History returns the most recent persisted forecasts.
func (f *Forecaster) History(ctx context.Context) ([]storage.PersistedForecast, error) {
	rows, err := f.results.Recent(ctx, f.opts.HistoryLimit)
	if err != nil {
		f.recordError("store", "recent_failed")
		return nil, fmt.Errorf("recent results: %w", err)
	}
	return rows, nil
}

// Today summarizes the forecasts stored for the current UTC day.
func (f *Forecaster) Today(ctx context.Context) (storage.Summary, error) {
	today := series.Day(f.now())
	rows, err := f.results.ForDate(ctx, today)
	if err != nil {
		f.recordError("store", "for_date_failed")
		return storage.Summary{}, fmt.Errorf("results for %s: %w", today.Format(series.DateLayout), err)
	}
	return storage.Summarize(today, rows), nil
}

// SolarStatus computes the bill breakdown for one reading.
func (f *Forecaster) SolarStatus(category string, avgPowerKW, generation, gridImport, gridExport float64) tariff.BillBreakdown {
	return tariff.Compute(f.tariffs, category, avgPowerKW, generation, gridImport, gridExport)
}

// Weather fetches daily observations for a location.
func (f *Forecaster) Weather(ctx context.Context, lat, lon float64, start, end time.Time) ([]weather.Observation, error) {
	if f.weather == nil {
		return nil, fmt.Errorf("%w: weather client not configured", weather.ErrExternalService)
	}

	begin := time.Now()
	obs, err := f.weather.Daily(ctx, lat, lon, start, end)
	if f.metrics != nil {
		f.metrics.RecordWeather(time.Since(begin).Seconds())
	}
	if err != nil {
		f.recordError("weather", "fetch_failed")
		return nil, err
	}
	return obs, nil
}

func (f *Forecaster) recordResult(rows, appended int) {
	if f.metrics != nil {
		f.metrics.RecordResult(rows, appended)
	}
}

func (f *Forecaster) recordError(component, reason string) {
	if f.metrics != nil {
		f.metrics.RecordError(component, reason)
	}
}
