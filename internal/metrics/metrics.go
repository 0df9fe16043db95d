// Package metrics provides Prometheus metrics for the heart-risk service.
// It covers the prediction pipeline, attribution, batch orchestration and
// the HTTP surface, exposed via the Prometheus metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "heart_risk"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Prediction metrics
	Predictions       *prometheus.CounterVec // Predictions by risk level
	Failures          *prometheus.CounterVec // Failed predictions by kind
	PredictionLatency prometheus.Histogram   // Full pipeline latency in seconds
	PredictionScores  prometheus.Histogram   // Distribution of calibrated probabilities
	ModelAge          prometheus.Gauge       // Age of the loaded artifact in seconds

	// Attribution metrics
	AttributionLatency  prometheus.Histogram // Sampled Shapley latency in seconds
	AttributionInFlight prometheus.Gauge     // Attributions currently holding a slot

	// Batch metrics
	Batches   *prometheus.CounterVec // Batches by terminal status
	BatchRows *prometheus.CounterVec // Batch rows by outcome

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec   // Requests by route and status code
	HTTPDuration *prometheus.HistogramVec // Request duration by route

	// Storage metrics
	StoredPredictions prometheus.Counter // Prediction log writes
	StorageErrors     prometheus.Counter // Prediction log write failures
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Total number of successful predictions by risk level",
		}, []string{"risk_level"}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_failures_total",
			Help:      "Total number of failed predictions by failure kind",
		}, []string{"kind"}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_latency_seconds",
			Help:      "End-to-end single record prediction latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		PredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_probability",
			Help:      "Distribution of calibrated disease probabilities",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 9),
		}),
		ModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_age_seconds",
			Help:      "Age of the loaded model artifact in seconds",
		}),
		AttributionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attribution_latency_seconds",
			Help:      "Feature attribution latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		AttributionInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "attribution_in_flight",
			Help:      "Number of attributions currently running",
		}),
		Batches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Total number of batches by terminal status",
		}, []string{"status"}),
		BatchRows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_rows_total",
			Help:      "Total number of batch rows by outcome",
		}, []string{"outcome"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		StoredPredictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stored_predictions_total",
			Help:      "Total number of predictions written to the prediction log",
		}),
		StorageErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Total number of prediction log write failures",
		}),
	}
}

// FailureRate is failed / (failed + succeeded) over the process lifetime.
func (m *Metrics) FailureRate(gatherer prometheus.Gatherer) float64 {
	mfs, err := gatherer.Gather()
	if err != nil {
		return 0
	}

	var ok, failed float64
	for _, mf := range mfs {
		switch mf.GetName() {
		case namespace + "_predictions_total":
			for _, m := range mf.Metric {
				ok += m.GetCounter().GetValue()
			}
		case namespace + "_prediction_failures_total":
			for _, m := range mf.Metric {
				failed += m.GetCounter().GetValue()
			}
		}
	}

	// Avoid division by zero
	if ok+failed == 0 {
		return 0
	}
	return failed / (ok + failed)
}
