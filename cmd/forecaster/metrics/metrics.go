// Package metrics provides Prometheus metrics instrumentation for the forecaster.
//
// It exposes operational metrics about the forecast pipeline: the duration of
// each stage (collect, train, predict), the size of training tables and
// results, weather fetch latency, and error tracking. All metrics are exposed
// via the /metrics HTTP endpoint for Prometheus scraping.
//
// Metrics exposed:
//   - solariq_adapter_collect_seconds: Histogram of history collection duration, by series
//   - solariq_model_train_seconds: Histogram of train-or-update duration, by series
//   - solariq_model_predict_seconds: Histogram of prediction duration, by series
//   - solariq_forecast_rows: Gauge of rows in the latest forecast result
//   - solariq_results_appended_total: Counter of rows written to the result store
//   - solariq_training_rows: Gauge of cumulative training rows, by series
//   - solariq_weather_fetch_seconds: Histogram of weather request duration
//   - solariq_errors_total: Counter of errors by component and reason
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the forecaster.
type Metrics struct {
	AdapterCollectSeconds *prometheus.HistogramVec
	ModelTrainSeconds     *prometheus.HistogramVec
	ModelPredictSeconds   *prometheus.HistogramVec
	ForecastRows          prometheus.Gauge
	ResultsAppendedTotal  prometheus.Counter
	TrainingRows          *prometheus.GaugeVec
	WeatherFetchSeconds   prometheus.Histogram
	ErrorsTotal           *prometheus.CounterVec
}

// New creates all metrics and registers them with reg. A nil reg registers
// with the default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		AdapterCollectSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "solariq_adapter_collect_seconds",
			Help:    "Time spent collecting history from a source",
			Buckets: prometheus.DefBuckets,
		}, []string{"series"}),

		// fits on long histories or a remote byom service take longer than DefBuckets covers
		ModelTrainSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "solariq_model_train_seconds",
			Help:    "Time spent training or updating a model",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"series"}),

		ModelPredictSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "solariq_model_predict_seconds",
			Help:    "Time spent predicting a forecast",
			Buckets: prometheus.DefBuckets,
		}, []string{"series"}),

		ForecastRows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "solariq_forecast_rows",
			Help: "Rows in the most recent forecast result",
		}),

		ResultsAppendedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "solariq_results_appended_total",
			Help: "Total forecast rows appended to the result store",
		}),

		TrainingRows: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "solariq_training_rows",
			Help: "Cumulative training rows of the current model",
		}, []string{"series"}),

		WeatherFetchSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "solariq_weather_fetch_seconds",
			Help:    "Time spent fetching weather observations",
			Buckets: prometheus.DefBuckets,
		}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "solariq_errors_total",
			Help: "Total number of errors by component and reason",
		}, []string{"component", "reason"}),
	}
}

// RecordCollect records the time spent collecting one series.
func (m *Metrics) RecordCollect(series string, seconds float64) {
	m.AdapterCollectSeconds.WithLabelValues(series).Observe(seconds)
}

// RecordTrain records a successful training call and its table size.
func (m *Metrics) RecordTrain(series string, seconds float64, rows int) {
	m.ModelTrainSeconds.WithLabelValues(series).Observe(seconds)
	m.TrainingRows.WithLabelValues(series).Set(float64(rows))
}

// RecordPredict records the time spent predicting one series.
func (m *Metrics) RecordPredict(series string, seconds float64) {
	m.ModelPredictSeconds.WithLabelValues(series).Observe(seconds)
}

// RecordResult records the size of a forecast result and the rows persisted.
func (m *Metrics) RecordResult(rows, appended int) {
	m.ForecastRows.Set(float64(rows))
	m.ResultsAppendedTotal.Add(float64(appended))
}

// RecordWeather records the time spent on one weather request.
func (m *Metrics) RecordWeather(seconds float64) {
	m.WeatherFetchSeconds.Observe(seconds)
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
