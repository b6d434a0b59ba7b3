// Package metrics provides Prometheus metrics for the legendary classifier
// service. It covers predictions, the explanation pipeline, the similarity
// search, the prediction cache and the HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "legendary"

// Metrics holds all Prometheus collectors of the service.
type Metrics struct {
	// Prediction metrics
	Predictions        prometheus.Counter   // Successful predictions served
	PredictionFailures prometheus.Counter   // Predictions that returned an error
	PredictionLatency  prometheus.Histogram // End-to-end prediction latency in seconds
	ProbabilityScores  prometheus.Histogram // Distribution of P(legendary)
	ModelLoaded        prometheus.Gauge     // 1 when a model is loaded

	// Explanation metrics
	ExplanationMethods *prometheus.CounterVec // Explanations by method label
	ShapFailures       prometheus.Counter     // Explainer errors, panics and timeouts
	ShapLatency        prometheus.Histogram   // Explainer latency in seconds
	FallbackUse        prometheus.Counter     // Times the importance fallback was used

	// Similarity and cache metrics
	SimilarityRequests prometheus.Counter
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter

	// HTTP metrics
	HTTPRequests     *prometheus.CounterVec   // Requests by route and status
	HTTPDuration     *prometheus.HistogramVec // Request duration by route
	RateLimited      prometheus.Counter       // Requests rejected by the rate limiter
	WSConnections    prometheus.Gauge         // Open prediction websockets
	HistoryWriteErrs prometheus.Counter       // Failed history writes

	gatherer prometheus.Gatherer
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics on a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	m := &Metrics{
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Total number of predictions served",
		}),
		PredictionFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_failures_total",
			Help:      "Total number of failed predictions",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_latency_seconds",
			Help:      "Prediction latency in seconds (end-to-end)",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}),
		ProbabilityScores: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probability_legendary",
			Help:      "Distribution of predicted legendary probabilities",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		ModelLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_loaded",
			Help:      "Whether a classifier is loaded (1) or the service is degraded (0)",
		}),
		ExplanationMethods: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "explanations_total",
			Help:      "Total number of explanations by method",
		}, []string{"method"}),
		ShapFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shap_failures_total",
			Help:      "Total number of failed SHAP computations",
		}),
		ShapLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "shap_latency_seconds",
			Help:      "SHAP computation latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
		FallbackUse: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_use_total",
			Help:      "Total number of times the importance fallback was used",
		}),
		SimilarityRequests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "similarity_requests_total",
			Help:      "Total number of similarity searches served",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of prediction cache hits",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of prediction cache misses",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the rate limiter",
		}),
		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Number of open prediction websocket connections",
		}),
		HistoryWriteErrs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_write_errors_total",
			Help:      "Total number of failed prediction history writes",
		}),
	}
	if g, ok := registerer.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// ErrorRate is failed predictions over all prediction attempts, or 0 when
// nothing has been recorded or the registry cannot be gathered.
func (m *Metrics) ErrorRate() float64 {
	if m.gatherer == nil {
		return 0
	}
	families, err := m.gatherer.Gather()
	if err != nil {
		return 0
	}

	var ok, failed float64
	for _, mf := range families {
		switch mf.GetName() {
		case namespace + "_predictions_total":
			for _, metric := range mf.GetMetric() {
				ok = metric.GetCounter().GetValue()
			}
		case namespace + "_prediction_failures_total":
			for _, metric := range mf.GetMetric() {
				failed = metric.GetCounter().GetValue()
			}
		}
	}

	if ok+failed == 0 {
		return 0
	}
	return failed / (ok + failed)
}

// Gatherer returns the registry backing m, or nil when the registerer could
// not be gathered.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}
