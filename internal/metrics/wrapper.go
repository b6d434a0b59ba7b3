package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsGauge is the gauge surface handed to connection tracking.
type MetricsGauge interface {
	Set(float64)
	Add(float64)
}

// MetricsWrapper adapts Metrics to the narrow interfaces used by the
// predictor and the HTTP layer.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) PredictionsInc()                    { w.m.Predictions.Inc() }
func (w *MetricsWrapper) PredictionFailuresInc()             { w.m.PredictionFailures.Inc() }
func (w *MetricsWrapper) PredictionLatencyObserve(v float64) { w.m.PredictionLatency.Observe(v) }
func (w *MetricsWrapper) ProbabilityObserve(v float64)       { w.m.ProbabilityScores.Observe(v) }
func (w *MetricsWrapper) ShapFailuresInc()                   { w.m.ShapFailures.Inc() }
func (w *MetricsWrapper) ShapLatencyObserve(v float64)       { w.m.ShapLatency.Observe(v) }
func (w *MetricsWrapper) FallbackUseInc()                    { w.m.FallbackUse.Inc() }
func (w *MetricsWrapper) SimilarityRequestsInc()             { w.m.SimilarityRequests.Inc() }
func (w *MetricsWrapper) CacheHitInc()                       { w.m.CacheHits.Inc() }
func (w *MetricsWrapper) CacheMissInc()                      { w.m.CacheMisses.Inc() }
func (w *MetricsWrapper) RateLimitedInc()                    { w.m.RateLimited.Inc() }
func (w *MetricsWrapper) HistoryWriteErrorsInc()             { w.m.HistoryWriteErrs.Inc() }

func (w *MetricsWrapper) ExplanationMethodInc(method string) {
	w.m.ExplanationMethods.WithLabelValues(method).Inc()
}

func (w *MetricsWrapper) ModelLoadedSet(loaded bool) {
	if loaded {
		w.m.ModelLoaded.Set(1)
		return
	}
	w.m.ModelLoaded.Set(0)
}

// HTTPRequestObserve records one finished request. route is the matched
// pattern, not the raw path, to keep label cardinality bounded.
func (w *MetricsWrapper) HTTPRequestObserve(method, route string, status int, d time.Duration) {
	w.m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	w.m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (w *MetricsWrapper) WSConnections() MetricsGauge {
	return &GaugeWrapper{w.m.WSConnections}
}

func (w *MetricsWrapper) ErrorRate() float64 {
	return w.m.ErrorRate()
}

type GaugeWrapper struct {
	g prometheus.Gauge
}

func (gw *GaugeWrapper) Set(v float64) {
	gw.g.Set(v)
}

func (gw *GaugeWrapper) Add(v float64) {
	gw.g.Add(v)
}

func (w *MetricsWrapper) Gatherer() prometheus.Gatherer {
	return w.m.Gatherer()
}
