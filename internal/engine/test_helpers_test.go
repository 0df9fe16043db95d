package engine

import "sync"

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu              sync.Mutex
	predictions     map[string]int
	failures        map[string]int
	latencyCount    int
	attributions    int
	inFlight        float64
	maxInFlight     float64
	scores          []float64
	batches         map[string]int
	batchSucceeded  int
	batchFailed     int
	modelAgeSeconds float64
}

func newMockMetrics() *MockMetrics {
	return &MockMetrics{
		predictions: make(map[string]int),
		failures:    make(map[string]int),
		batches:     make(map[string]int),
	}
}

func (m *MockMetrics) PredictionsInc(level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions[level]++
}

func (m *MockMetrics) FailuresInc(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[kind]++
}

func (m *MockMetrics) LatencyObserve(float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencyCount++
}

func (m *MockMetrics) AttributionLatencyObserve(float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attributions++
}

func (m *MockMetrics) AttributionInFlightAdd(delta float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight += delta
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
}

func (m *MockMetrics) PredictionScoresObserve(p float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores = append(m.scores, p)
}

func (m *MockMetrics) BatchObserve(status string, succeeded, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[status]++
	m.batchSucceeded += succeeded
	m.batchFailed += failed
}

func (m *MockMetrics) ModelAgeSet(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelAgeSeconds = seconds
}
