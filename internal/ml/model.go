package ml

import (
	"fmt"
	"math"
)

// Scaler standardizes raw clinical units into the space the learners were
// trained in: (x - mean) / scale.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Transform returns a new scaled vector.
func (s Scaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		out[i] = (x[i] - s.Mean[i]) / s.Scale[i]
	}
	return out
}

// Pool holds the base learners in the order the meta-learner was trained on.
type Pool struct {
	learners []Learner
}

// NewPool builds a pool. The order of learners is significant.
func NewPool(learners ...Learner) *Pool {
	l := make([]Learner, len(learners))
	copy(l, learners)
	return &Pool{learners: l}
}

// Size returns the number of base learners.
func (p *Pool) Size() int { return len(p.learners) }

// Learners returns the learners in artifact order.
func (p *Pool) Learners() []Learner {
	out := make([]Learner, len(p.learners))
	copy(out, p.learners)
	return out
}

// Score returns one probability per learner in artifact order. A learner that
// cannot score fails the whole call; there is no partial result.
func (p *Pool) Score(x []float64) ([]float64, error) {
	out := make([]float64, len(p.learners))
	for i, l := range p.learners {
		v, err := l.PredictProba(x)
		if err != nil {
			return nil, &ModelError{Op: "score", Kind: ErrScoring, Err: fmt.Errorf("learner %s: %w", l.Name(), err)}
		}
		out[i] = v
	}
	return out, nil
}

// Calibration is a Platt sigmoid: p = 1 / (1 + exp(A*s + B)).
type Calibration struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// MetaLearner is the stacking combiner: logistic regression over the base
// probabilities, optionally followed by sigmoid calibration.
type MetaLearner struct {
	coef        []float64
	intercept   float64
	calibration *Calibration
}

// NewMetaLearner builds a combiner from trained weights.
func NewMetaLearner(coef []float64, intercept float64, cal *Calibration) *MetaLearner {
	c := make([]float64, len(coef))
	copy(c, coef)
	var calCopy *Calibration
	if cal != nil {
		v := *cal
		calCopy = &v
	}
	return &MetaLearner{coef: c, intercept: intercept, calibration: calCopy}
}

// Inputs returns the number of base probabilities the combiner expects.
func (m *MetaLearner) Inputs() int { return len(m.coef) }

// Combine maps the base probabilities to one probability in [0,1].
func (m *MetaLearner) Combine(p []float64) (float64, error) {
	if len(p) != len(m.coef) {
		return 0, modelErr("combine", ErrLearnerCount, "expected %d base probabilities, got %d", len(m.coef), len(p))
	}
	s := sigmoid(dot(m.coef, p) + m.intercept)
	if m.calibration != nil {
		s = 1.0 / (1.0 + math.Exp(m.calibration.A*s+m.calibration.B))
	}
	if math.IsNaN(s) {
		return 0, modelErr("combine", ErrScoring, "meta-learner produced NaN")
	}
	return clip01(s), nil
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Scored is the output of one pass through the ensemble.
type Scored struct {
	Base        []float64 // per-learner probabilities, artifact order
	Probability float64   // calibrated meta-learner output
}

// Model is the full inference path: scaler, base pool, meta-learner.
type Model struct {
	scaler Scaler
	pool   *Pool
	meta   *MetaLearner
}

// NewModel assembles a model. The pool size must match the meta-learner.
func NewModel(scaler Scaler, pool *Pool, meta *MetaLearner) (*Model, error) {
	if pool.Size() != meta.Inputs() {
		return nil, modelErr("validate", ErrLearnerCount, "pool has %d learners, meta-learner expects %d", pool.Size(), meta.Inputs())
	}
	return &Model{scaler: scaler, pool: pool, meta: meta}, nil
}

// Pool exposes the base learner pool.
func (m *Model) Pool() *Pool { return m.pool }

// Predict scores a raw feature vector in canonical order.
func (m *Model) Predict(x []float64) (Scored, error) {
	if len(x) != len(m.scaler.Mean) {
		return Scored{}, modelErr("score", ErrScoring, "expected %d features, got %d", len(m.scaler.Mean), len(x))
	}
	base, err := m.pool.Score(m.scaler.Transform(x))
	if err != nil {
		return Scored{}, err
	}
	p, err := m.meta.Combine(base)
	if err != nil {
		return Scored{}, err
	}
	return Scored{Base: base, Probability: p}, nil
}

// Probability is Predict reduced to the final probability. It is the value
// function attribution explains.
func (m *Model) Probability(x []float64) (float64, error) {
	s, err := m.Predict(x)
	if err != nil {
		return 0, err
	}
	return s.Probability, nil
}
