package ml

import "sync"

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu                 sync.Mutex
	predictions        int
	failures           int
	latencySum         float64
	probabilities      []float64
	methods            map[string]int
	shapFailures       int
	shapLatencySum     float64
	fallbackUse        int
	similarityRequests int
	cacheHits          int
	cacheMisses        int
}

func (m *MockMetrics) PredictionsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions++
}

func (m *MockMetrics) PredictionFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *MockMetrics) PredictionLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

func (m *MockMetrics) ProbabilityObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probabilities = append(m.probabilities, v)
}

func (m *MockMetrics) ExplanationMethodInc(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.methods == nil {
		m.methods = make(map[string]int)
	}
	m.methods[method]++
}

func (m *MockMetrics) ShapFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shapFailures++
}

func (m *MockMetrics) ShapLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shapLatencySum += v
}

func (m *MockMetrics) FallbackUseInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbackUse++
}

func (m *MockMetrics) SimilarityRequestsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.similarityRequests++
}

func (m *MockMetrics) CacheHitInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheHits++
}

func (m *MockMetrics) CacheMissInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheMisses++
}

// Getter methods for testing

func (m *MockMetrics) Predictions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.predictions
}

func (m *MockMetrics) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

func (m *MockMetrics) MethodCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.methods[method]
}

func (m *MockMetrics) ShapFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shapFailures
}

func (m *MockMetrics) FallbackUse() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fallbackUse
}

func (m *MockMetrics) SimilarityRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.similarityRequests
}

func (m *MockMetrics) CacheHits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cacheHits
}

func (m *MockMetrics) CacheMisses() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cacheMisses
}

func (m *MockMetrics) Probabilities() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.probabilities...)
}
