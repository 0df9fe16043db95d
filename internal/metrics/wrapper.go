package metrics

import "strconv"

// Wrapper adapts Metrics to the engine's and server's reporting interfaces.
type Wrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

func (w *Wrapper) PredictionsInc(level string) {
	w.m.Predictions.WithLabelValues(level).Inc()
}

func (w *Wrapper) FailuresInc(kind string) {
	w.m.Failures.WithLabelValues(kind).Inc()
}

func (w *Wrapper) LatencyObserve(seconds float64) {
	w.m.PredictionLatency.Observe(seconds)
}

func (w *Wrapper) AttributionLatencyObserve(seconds float64) {
	w.m.AttributionLatency.Observe(seconds)
}

func (w *Wrapper) AttributionInFlightAdd(delta float64) {
	w.m.AttributionInFlight.Add(delta)
}

func (w *Wrapper) PredictionScoresObserve(p float64) {
	w.m.PredictionScores.Observe(p)
}

func (w *Wrapper) BatchObserve(status string, succeeded, failed int) {
	w.m.Batches.WithLabelValues(status).Inc()
	w.m.BatchRows.WithLabelValues("success").Add(float64(succeeded))
	w.m.BatchRows.WithLabelValues("error").Add(float64(failed))
}

func (w *Wrapper) ModelAgeSet(seconds float64) {
	w.m.ModelAge.Set(seconds)
}

func (w *Wrapper) HTTPObserve(route string, code int, seconds float64) {
	w.m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	w.m.HTTPDuration.WithLabelValues(route).Observe(seconds)
}

func (w *Wrapper) StoredInc(n int) {
	w.m.StoredPredictions.Add(float64(n))
}

func (w *Wrapper) StorageErrorsInc() {
	w.m.StorageErrors.Inc()
}
