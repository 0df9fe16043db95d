package engine

// MetricsInterface is what the engine reports to. *metrics.Wrapper
// implements it; nil means no metrics.
type MetricsInterface interface {
	PredictionsInc(level string)
	FailuresInc(kind string)
	LatencyObserve(seconds float64)
	AttributionLatencyObserve(seconds float64)
	AttributionInFlightAdd(delta float64)
	PredictionScoresObserve(p float64)
	BatchObserve(status string, succeeded, failed int)
	ModelAgeSet(seconds float64)
}

type nopMetrics struct{}

func (nopMetrics) PredictionsInc(string) {}
func (nopMetrics) FailuresInc(string) {}
func (nopMetrics) LatencyObserve(float64) {}
func (nopMetrics) AttributionLatencyObserve(float64) {}
func (nopMetrics) AttributionInFlightAdd(float64) {}
func (nopMetrics) PredictionScoresObserve(float64) {}
func (nopMetrics) BatchObserve(string, int, int) {}
func (nopMetrics) ModelAgeSet(float64) {}
