package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// TrainingMetrics are the hold-out scores recorded when the artifact was built.
type TrainingMetrics struct {
	Accuracy        float64 `json:"accuracy"`
	Precision       float64 `json:"precision"`
	Recall          float64 `json:"recall"`
	F1Score         float64 `json:"f1_score"`
	ROCAUC          float64 `json:"roc_auc"`
	TrainingSamples int     `json:"training_samples"`
}

// LearnerSpec is the serialized form of one base learner. Which fields are
// used depends on Kind.
type LearnerSpec struct {
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Trees     []Tree    `json:"trees,omitempty"`
	BaseScore float64   `json:"base_score,omitempty"`
	Coef      []float64 `json:"coef,omitempty"`
	Intercept float64   `json:"intercept,omitempty"`
}

// MetaSpec is the serialized stacking combiner.
type MetaSpec struct {
	Coef        []float64    `json:"coef"`
	Intercept   float64      `json:"intercept"`
	Calibration *Calibration `json:"calibration,omitempty"`
}

// Artifact is the versioned bundle of trained parameters. It is loaded once
// and never mutated afterwards.
type Artifact struct {
	Version      string          `json:"version"`
	TrainedAt    time.Time       `json:"trained_at"`
	Features     []string        `json:"features"`
	Scaler       Scaler          `json:"scaler"`
	BaseLearners []LearnerSpec   `json:"base_learners"`
	MetaLearner  MetaSpec        `json:"meta_learner"`
	Background   [][]float64     `json:"background"`
	Metrics      TrainingMetrics `json:"metrics"`

	path     string
	modified time.Time
}

// ExpectedLearners is the number of base learners a stacking artifact carries.
const ExpectedLearners = 3

// LoadArtifact reads and decodes an artifact file. It does not validate it
// against a schema; call Build for that.
func LoadArtifact(path string) (*Artifact, error) {
	if path == "" {
		return nil, &ModelError{Op: "load", Kind: ErrArtifactMissing, Err: errors.New("no artifact path configured")}
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ModelError{Op: "load", Kind: ErrArtifactMissing, Err: fmt.Errorf("%s: %w", path, err)}
		}
		return nil, &ModelError{Op: "load", Kind: ErrArtifactCorrupt, Err: err}
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, &ModelError{Op: "load", Kind: ErrArtifactMissing, Err: err}
	}
	defer file.Close()

	var a Artifact
	if err := json.NewDecoder(file).Decode(&a); err != nil {
		return nil, &ModelError{Op: "load", Kind: ErrArtifactCorrupt, Err: fmt.Errorf("decode %s: %w", path, err)}
	}
	a.path = path
	a.modified = info.ModTime()

	log.Info().
		Str("model_path", path).
		Str("version", a.Version).
		Int("base_learners", len(a.BaseLearners)).
		Int("background_rows", len(a.Background)).
		Msg("model artifact loaded")

	return &a, nil
}

// Save writes the artifact as indented JSON.
func (a *Artifact) Save(path string) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Path returns the file the artifact was loaded from, if any.
func (a *Artifact) Path() string { return a.path }

// Age returns the time since the artifact file was last modified, or since
// training when it was built in memory.
func (a *Artifact) Age() time.Duration {
	if !a.modified.IsZero() {
		return time.Since(a.modified)
	}
	if !a.TrainedAt.IsZero() {
		return time.Since(a.TrainedAt)
	}
	return 0
}

// Build validates the artifact against the given feature schema and returns
// the executable model. Any inconsistency is a *ModelError.
func (a *Artifact) Build(schema []string) (*Model, error) {
	if err := a.validate(schema); err != nil {
		return nil, err
	}

	learners := make([]Learner, len(a.BaseLearners))
	for i, spec := range a.BaseLearners {
		l, err := buildLearner(spec, len(schema))
		if err != nil {
			return nil, &ModelError{Op: "validate", Kind: ErrArtifactCorrupt, Err: fmt.Errorf("base learner %d: %w", i, err)}
		}
		learners[i] = l
	}

	scaler := Scaler{
		Mean:  append([]float64(nil), a.Scaler.Mean...),
		Scale: append([]float64(nil), a.Scaler.Scale...),
	}
	meta := NewMetaLearner(a.MetaLearner.Coef, a.MetaLearner.Intercept, a.MetaLearner.Calibration)
	return NewModel(scaler, NewPool(learners...), meta)
}

// BackgroundRows returns a copy of the at most limit reference rows used as
// the attribution baseline. limit <= 0 means all rows.
func (a *Artifact) BackgroundRows(limit int) [][]float64 {
	n := len(a.Background)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		out[i] = append([]float64(nil), a.Background[i]...)
	}
	return out
}

func (a *Artifact) validate(schema []string) error {
	if len(a.Features) != len(schema) {
		return modelErr("validate", ErrFeatureMismatch, "artifact has %d features, schema has %d", len(a.Features), len(schema))
	}
	for i := range schema {
		if a.Features[i] != schema[i] {
			return modelErr("validate", ErrFeatureMismatch, "position %d: artifact %q, schema %q", i, a.Features[i], schema[i])
		}
	}

	if len(a.BaseLearners) != ExpectedLearners {
		return modelErr("validate", ErrLearnerCount, "expected %d base learners, got %d", ExpectedLearners, len(a.BaseLearners))
	}
	if len(a.MetaLearner.Coef) != len(a.BaseLearners) {
		return modelErr("validate", ErrLearnerCount, "meta-learner has %d weights for %d base learners", len(a.MetaLearner.Coef), len(a.BaseLearners))
	}

	n := len(schema)
	if len(a.Scaler.Mean) != n || len(a.Scaler.Scale) != n {
		return modelErr("validate", ErrArtifactCorrupt, "scaler width %d/%d, want %d", len(a.Scaler.Mean), len(a.Scaler.Scale), n)
	}
	for i, s := range a.Scaler.Scale {
		if s == 0 || !finite(s) || !finite(a.Scaler.Mean[i]) {
			return modelErr("validate", ErrArtifactCorrupt, "scaler entry %d is degenerate", i)
		}
	}
	if !allFinite(a.MetaLearner.Coef) || !finite(a.MetaLearner.Intercept) {
		return modelErr("validate", ErrArtifactCorrupt, "meta-learner has non-finite weights")
	}

	if len(a.Background) == 0 {
		return modelErr("validate", ErrArtifactCorrupt, "artifact has no background rows")
	}
	for i, row := range a.Background {
		if len(row) != n || !allFinite(row) {
			return modelErr("validate", ErrArtifactCorrupt, "background row %d is malformed", i)
		}
	}

	seen := make(map[string]bool, len(a.BaseLearners))
	for i, spec := range a.BaseLearners {
		if spec.Name == "" || seen[spec.Name] {
			return modelErr("validate", ErrArtifactCorrupt, "base learner %d has empty or duplicate name %q", i, spec.Name)
		}
		seen[spec.Name] = true
	}
	return nil
}

func buildLearner(spec LearnerSpec, width int) (Learner, error) {
	switch spec.Kind {
	case KindRandomForest, KindGradientBoosting:
		if len(spec.Trees) == 0 {
			return nil, fmt.Errorf("%s has no trees", spec.Name)
		}
		trees := make([]Tree, len(spec.Trees))
		for i := range spec.Trees {
			if err := spec.Trees[i].Validate(width); err != nil {
				return nil, fmt.Errorf("%s tree %d: %w", spec.Name, i, err)
			}
			trees[i] = copyTree(spec.Trees[i])
		}
		if spec.Kind == KindRandomForest {
			return &RandomForest{name: spec.Name, trees: trees, width: width}, nil
		}
		if !finite(spec.BaseScore) {
			return nil, fmt.Errorf("%s has non-finite base score", spec.Name)
		}
		return &GradientBoosting{name: spec.Name, baseScore: spec.BaseScore, trees: trees, width: width}, nil

	case KindLogistic:
		if len(spec.Coef) != width {
			return nil, fmt.Errorf("%s has %d coefficients, want %d", spec.Name, len(spec.Coef), width)
		}
		if !allFinite(spec.Coef) || !finite(spec.Intercept) {
			return nil, fmt.Errorf("%s has non-finite weights", spec.Name)
		}
		return &Logistic{name: spec.Name, coef: append([]float64(nil), spec.Coef...), intercept: spec.Intercept}, nil

	default:
		return nil, fmt.Errorf("unknown learner kind %q", spec.Kind)
	}
}

func copyTree(t Tree) Tree {
	return Tree{
		Feature:   append([]int(nil), t.Feature...),
		Threshold: append([]float64(nil), t.Threshold...),
		Left:      append([]int(nil), t.Left...),
		Right:     append([]int(nil), t.Right...),
		Value:     append([]float64(nil), t.Value...),
	}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func allFinite(v []float64) bool {
	for _, x := range v {
		if !finite(x) {
			return false
		}
	}
	return true
}

// LearnerInfo describes one base learner for operators.
type LearnerInfo struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Trees int    `json:"trees,omitempty"`
}

// ModelInfo is the operator-facing description of a loaded artifact.
type ModelInfo struct {
	Version        string          `json:"model_version"`
	ModelType      string          `json:"model_type"`
	TrainedAt      time.Time       `json:"trained_at"`
	Features       []string        `json:"features"`
	BaseLearners   []LearnerInfo   `json:"base_learners"`
	Calibrated     bool            `json:"calibrated"`
	BackgroundRows int             `json:"background_rows"`
	Metrics        TrainingMetrics `json:"metrics"`
	AgeSeconds     float64         `json:"age_seconds"`
}

// Info summarizes the artifact.
func (a *Artifact) Info() ModelInfo {
	learners := make([]LearnerInfo, len(a.BaseLearners))
	for i, l := range a.BaseLearners {
		learners[i] = LearnerInfo{Name: l.Name, Kind: l.Kind, Trees: len(l.Trees)}
	}
	return ModelInfo{
		Version:        a.Version,
		ModelType:      "Calibrated Stacking Ensemble",
		TrainedAt:      a.TrainedAt,
		Features:       append([]string(nil), a.Features...),
		BaseLearners:   learners,
		Calibrated:     a.MetaLearner.Calibration != nil,
		BackgroundRows: len(a.Background),
		Metrics:        a.Metrics,
		AgeSeconds:     a.Age().Seconds(),
	}
}
