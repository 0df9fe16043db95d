// Package ml holds the trained stacking ensemble: the versioned model
// artifact, the three base learners, the scaler that feeds them, and the
// calibrated meta-learner that combines their outputs.
//
// Everything in this package is read-only after LoadArtifact/Build returns, so
// a single Model may be shared by any number of concurrent callers.
package ml

// Learner is the single capability every base learner provides.
// Implementations must be pure: no mutable state, no dependency on call order.
type Learner interface {
	// Name is the learner's identifier inside the artifact.
	Name() string

	// Kind is the model family, e.g. "random_forest".
	Kind() string

	// PredictProba returns the disease-class probability for a scaled
	// feature vector in canonical order.
	PredictProba(x []float64) (float64, error)
}

// Learner kinds understood by the artifact loader.
const (
	KindRandomForest     = "random_forest"
	KindGradientBoosting = "gradient_boosting"
	KindLogistic         = "logistic"
)
