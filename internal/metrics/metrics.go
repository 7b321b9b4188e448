// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Predictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attrition_predictions_total",
		Help: "Predictions served, by risk level.",
	}, []string{"risk_level"})

	PredictionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attrition_prediction_errors_total",
		Help: "Prediction service failures, by error code.",
	}, []string{"code"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "attrition_inference_duration_seconds",
		Help:    "Time spent in validation and inference per call.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05, 0.1, 0.5},
	}, []string{"endpoint"})

	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "attrition_batch_size",
		Help:    "Number of records per accepted batch request.",
		Buckets: []float64{1, 5, 10, 25, 50, 100},
	})

	ExplanationCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attrition_explanation_cache_total",
		Help: "Explanation cache lookups, by result (hit, miss, error).",
	}, []string{"result"})

	AuditWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attrition_audit_writes_total",
		Help: "Audit entries processed, by outcome (written, failed, dropped).",
	}, []string{"outcome"})

	AuditQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "attrition_audit_queue_depth",
		Help: "Audit entries waiting to be written.",
	})

	RetentionDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attrition_retention_deleted_total",
		Help: "Audit requests removed by the retention sweeper.",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attrition_http_requests_total",
		Help: "HTTP requests handled, by method, route pattern and status.",
	}, []string{"method", "route", "status"})

	HTTPPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attrition_http_panics_total",
		Help: "Handler panics turned into 500 responses.",
	})
)
