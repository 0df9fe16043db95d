// Package engine wires validation, the stacking ensemble, risk banding and
// attribution into the single-record and batch prediction pipelines.
package engine

import (
	"context"
	"fmt"
	"time"

	"heart-risk/internal/explain"
	"heart-risk/internal/features"
	"heart-risk/internal/ml"
	"heart-risk/internal/risk"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrency bounds attribution and batch parallelism when unset.
const DefaultMaxConcurrency = 4

// Options configure an Engine. Zero values take defaults.
type Options struct {
	// DecisionThreshold is the probability at or above which a record is
	// labelled positive. Zero is reserved for risk.DefaultDecisionThreshold,
	// so a threshold of exactly 0 cannot be requested.
	DecisionThreshold float64
	Bands             []risk.Band
	MaxConcurrency    int
	Permutations      int
	BackgroundLimit   int
	Seed              uint64
	Metrics           MetricsInterface
}

func (o Options) withDefaults() Options {
	if o.Bands == nil {
		o.Bands = risk.DefaultBands()
	}
	if o.DecisionThreshold == 0 {
		o.DecisionThreshold = risk.DefaultDecisionThreshold
	}
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = DefaultMaxConcurrency
	}
	if o.Permutations <= 0 {
		o.Permutations = explain.DefaultPermutations
	}
	if o.Metrics == nil {
		o.Metrics = nopMetrics{}
	}
	return o
}

// scorer is the slice of *ml.Model the pipeline depends on.
type scorer interface {
	Predict(x []float64) (ml.Scored, error)
}

// Engine is immutable after New and safe for concurrent use.
type Engine struct {
	artifact   *ml.Artifact
	model      scorer
	learners   []string
	classifier *risk.Classifier
	explainer  *explain.Explainer
	attrSlots  *semaphore.Weighted
	workers    int
	metrics    MetricsInterface
}

// LearnerProbability is one base learner's output for a record.
type LearnerProbability struct {
	Learner     string  `json:"learner"`
	Probability float64 `json:"probability"`
}

// PredictionResult is the outcome of the full pipeline for one record.
type PredictionResult struct {
	Probability         float64                `json:"probability"`
	Prediction          int                    `json:"prediction"`
	RiskLevel           risk.Category          `json:"risk_level"`
	Contributions       []explain.Contribution `json:"contributions"`
	BaselineProbability float64                `json:"baseline_probability"`
	BaseProbabilities   []LearnerProbability   `json:"base_probabilities"`
	ModelVersion        string                 `json:"model_version"`
	Input               map[string]float64     `json:"input"`
}

// TopFeature is the name of the largest-magnitude contribution.
func (r *PredictionResult) TopFeature() string {
	if len(r.Contributions) == 0 {
		return ""
	}
	return r.Contributions[0].Feature
}

// Load reads the artifact at path and builds an engine from it. Any failure
// is a *ml.ModelError and should stop the process.
func Load(path string, opts Options) (*Engine, error) {
	a, err := ml.LoadArtifact(path)
	if err != nil {
		return nil, err
	}
	return New(a, opts)
}

// New validates the artifact against the feature schema and builds the
// pipeline.
func New(a *ml.Artifact, opts Options) (*Engine, error) {
	if a == nil {
		return nil, notReady("load")
	}
	opts = opts.withDefaults()

	model, err := a.Build(features.Names())
	if err != nil {
		log.Error().Err(err).Str("model_path", a.Path()).Msg("model artifact rejected")
		return nil, err
	}

	classifier, err := risk.NewClassifier(opts.Bands, opts.DecisionThreshold)
	if err != nil {
		return nil, fmt.Errorf("risk classifier: %w", err)
	}

	explainer, err := explain.NewExplainer(model.Probability, a.BackgroundRows(opts.BackgroundLimit), features.Names(),
		explain.Options{Permutations: opts.Permutations, Seed: opts.Seed})
	if err != nil {
		return nil, &ml.ModelError{Op: "validate", Kind: ml.ErrArtifactCorrupt, Err: err}
	}

	learners := make([]string, 0, model.Pool().Size())
	for _, l := range model.Pool().Learners() {
		learners = append(learners, l.Name())
	}

	e := &Engine{
		artifact:   a,
		model:      model,
		learners:   learners,
		classifier: classifier,
		explainer:  explainer,
		attrSlots:  semaphore.NewWeighted(int64(opts.MaxConcurrency)),
		workers:    opts.MaxConcurrency,
		metrics:    opts.Metrics,
	}
	e.metrics.ModelAgeSet(a.Age().Seconds())

	log.Info().
		Str("model_version", a.Version).
		Float64("baseline_probability", explainer.Baseline()).
		Int("background_rows", explainer.BackgroundSize()).
		Int("permutations", explainer.Permutations()).
		Int("max_concurrency", opts.MaxConcurrency).
		Float64("decision_threshold", opts.DecisionThreshold).
		Str("risk_bands", risk.FormatBands(opts.Bands)).
		Msg("prediction engine ready")

	return e, nil
}

// Ready reports whether the engine can score records.
func (e *Engine) Ready() bool {
	return e != nil && e.model != nil && e.explainer != nil
}

// ModelVersion is the loaded artifact's version.
func (e *Engine) ModelVersion() string {
	if e == nil || e.artifact == nil {
		return ""
	}
	return e.artifact.Version
}

// Info describes the loaded artifact.
func (e *Engine) Info() ml.ModelInfo {
	info := e.artifact.Info()
	e.metrics.ModelAgeSet(info.AgeSeconds)
	return info
}

// Categories lists the configured risk categories low to high.
func (e *Engine) Categories() []risk.Category { return e.classifier.Categories() }

// MaxConcurrency is the attribution and batch parallelism limit.
func (e *Engine) MaxConcurrency() int { return e.workers }

// PredictOne runs validation, scoring, banding and attribution for one raw
// record. Errors are *features.SchemaError, *ml.ModelError, or a context
// error if ctx ends while waiting for an attribution slot.
func (e *Engine) PredictOne(ctx context.Context, raw map[string]any) (*PredictionResult, error) {
	if !e.Ready() {
		return nil, notReady("predict")
	}

	start := time.Now()
	res, err := e.predict(ctx, raw)
	e.metrics.LatencyObserve(time.Since(start).Seconds())
	if err != nil {
		kind := ErrorKind(err)
		e.metrics.FailuresInc(kind)
		if kind == KindModel {
			log.Error().Err(err).Str("model_version", e.ModelVersion()).Msg("prediction failed")
		} else {
			log.Debug().Err(err).Str("kind", kind).Msg("prediction rejected")
		}
		return nil, err
	}

	e.metrics.PredictionsInc(string(res.RiskLevel))
	e.metrics.PredictionScoresObserve(res.Probability)
	return res, nil
}

func (e *Engine) predict(ctx context.Context, raw map[string]any) (*PredictionResult, error) {
	rec, err := features.Validate(raw)
	if err != nil {
		return nil, err
	}
	x := rec.Vector()

	scored, err := e.model.Predict(x)
	if err != nil {
		return nil, err
	}

	level, err := e.classifier.Classify(scored.Probability)
	if err != nil {
		return nil, &ml.ModelError{Op: "classify", Kind: ml.ErrScoring, Err: err}
	}

	attr, err := e.attribute(ctx, x, scored.Probability)
	if err != nil {
		return nil, err
	}

	base := make([]LearnerProbability, len(scored.Base))
	for i, p := range scored.Base {
		base[i] = LearnerProbability{Learner: e.learners[i], Probability: p}
	}

	return &PredictionResult{
		Probability:         scored.Probability,
		Prediction:          e.classifier.Label(scored.Probability),
		RiskLevel:           level,
		Contributions:       attr.Contributions,
		BaselineProbability: attr.Baseline,
		BaseProbabilities:   base,
		ModelVersion:        e.artifact.Version,
		Input:               rec.Map(),
	}, nil
}

// attribute is the throttling point: at most MaxConcurrency explanations run
// at once. Once a slot is held the explanation runs to completion.
func (e *Engine) attribute(ctx context.Context, x []float64, p float64) (explain.Attribution, error) {
	if err := e.attrSlots.Acquire(ctx, 1); err != nil {
		return explain.Attribution{}, fmt.Errorf("wait for attribution slot: %w", err)
	}
	defer e.attrSlots.Release(1)

	e.metrics.AttributionInFlightAdd(1)
	defer e.metrics.AttributionInFlightAdd(-1)

	start := time.Now()
	attr, err := e.explainer.Explain(x, p)
	e.metrics.AttributionLatencyObserve(time.Since(start).Seconds())
	if err != nil {
		return explain.Attribution{}, &ml.ModelError{Op: "explain", Kind: ml.ErrScoring, Err: err}
	}
	return attr, nil
}
