// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Forecast metrics
	ForecastsComputed  prometheus.Counter
	ForecastErrors     prometheus.Counter
	ForecastSampleSize prometheus.Histogram

	// Backtest metrics
	BacktestCellsEvaluated prometheus.Counter
	BacktestCellsFailed    prometheus.Counter
	BacktestRowsPersisted  prometheus.Counter
	BacktestCellDuration   prometheus.Histogram

	// Ingestion metrics
	EventsIngested  prometheus.Counter
	EventsDuplicate prometheus.Counter
	EventsRejected  prometheus.Counter

	// External boundary metrics
	IndexCallLatency   *prometheus.HistogramVec
	IndexCallErrors    *prometheus.CounterVec
	DegradedEmbeddings prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "event_forecast_lab"
	}

	return &Metrics{
		ForecastsComputed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "computed_total",
			Help:      "Total number of forecasts computed",
		}),
		ForecastErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "errors_total",
			Help:      "Total number of failed forecast computations",
		}),
		ForecastSampleSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "forecast",
			Name:      "sample_size",
			Help:      "Neighbor sample count per forecast",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),

		BacktestCellsEvaluated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "cells_evaluated_total",
			Help:      "Total number of backtest cells evaluated",
		}),
		BacktestCellsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "cells_failed_total",
			Help:      "Total number of backtest cells that failed and were skipped",
		}),
		BacktestRowsPersisted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "rows_persisted_total",
			Help:      "Total number of backtest rows persisted",
		}),
		BacktestCellDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "cell_duration_seconds",
			Help:      "Duration of one backtest cell evaluation",
			Buckets:   prometheus.DefBuckets,
		}),

		EventsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Total number of events ingested",
		}),
		EventsDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_duplicate_total",
			Help:      "Events skipped because their id already exists",
		}),
		EventsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_rejected_total",
			Help:      "Input records rejected as malformed",
		}),

		IndexCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "call_duration_seconds",
			Help:      "Vector index call latency by operation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		IndexCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "call_errors_total",
			Help:      "Vector index call errors by operation",
		}, []string{"operation"}),
		DegradedEmbeddings: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "degraded_total",
			Help:      "Embeddings served by the local fallback provider",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
