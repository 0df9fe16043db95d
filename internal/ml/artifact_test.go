package ml

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"heart-risk/internal/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadArtifact_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifact.json")
	require.NoError(t, SampleArtifact().Save(path))

	a, err := LoadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", a.Version)
	assert.Equal(t, path, a.Path())
	assert.Len(t, a.BaseLearners, ExpectedLearners)

	m, err := a.Build(features.Names())
	require.NoError(t, err)
	assert.Equal(t, 3, m.Pool().Size())

	fromDisk, err := m.Probability(SampleArtifact().Background[0])
	require.NoError(t, err)
	inMemory, err := mustModel(t).Probability(SampleArtifact().Background[0])
	require.NoError(t, err)
	assert.Equal(t, inMemory, fromDisk)
}

func TestLoadArtifact_Missing(t *testing.T) {
	_, err := LoadArtifact(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrArtifactMissing))

	var merr *ModelError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "load", merr.Op)

	_, err = LoadArtifact("")
	assert.True(t, errors.Is(err, ErrArtifactMissing))
}

func TestLoadArtifact_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifact.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := LoadArtifact(path)
	assert.True(t, errors.Is(err, ErrArtifactCorrupt))
}

func TestBuild_RejectsInconsistentArtifacts(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(a *Artifact)
		kind   error
	}{
		{"swapped features", func(a *Artifact) { a.Features[0], a.Features[1] = a.Features[1], a.Features[0] }, ErrFeatureMismatch},
		{"missing feature", func(a *Artifact) { a.Features = a.Features[:12] }, ErrFeatureMismatch},
		{"two learners", func(a *Artifact) { a.BaseLearners = a.BaseLearners[:2] }, ErrLearnerCount},
		{"meta width", func(a *Artifact) { a.MetaLearner.Coef = []float64{1, 2} }, ErrLearnerCount},
		{"zero scale", func(a *Artifact) { a.Scaler.Scale[3] = 0 }, ErrArtifactCorrupt},
		{"short scaler", func(a *Artifact) { a.Scaler.Mean = a.Scaler.Mean[:5] }, ErrArtifactCorrupt},
		{"no background", func(a *Artifact) { a.Background = nil }, ErrArtifactCorrupt},
		{"ragged background", func(a *Artifact) { a.Background[2] = []float64{1, 2, 3} }, ErrArtifactCorrupt},
		{"unknown kind", func(a *Artifact) { a.BaseLearners[2].Kind = "svm" }, ErrArtifactCorrupt},
		{"duplicate name", func(a *Artifact) { a.BaseLearners[1].Name = a.BaseLearners[0].Name }, ErrArtifactCorrupt},
		{"logistic width", func(a *Artifact) { a.BaseLearners[2].Coef = a.BaseLearners[2].Coef[:4] }, ErrArtifactCorrupt},
		{"tree cycle", func(a *Artifact) { a.BaseLearners[0].Trees[0].Left[1] = 0 }, ErrArtifactCorrupt},
		{"tree feature", func(a *Artifact) { a.BaseLearners[1].Trees[0].Feature[0] = 13 }, ErrArtifactCorrupt},
		{"forest without trees", func(a *Artifact) { a.BaseLearners[0].Trees = nil }, ErrArtifactCorrupt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := SampleArtifact()
			tt.mutate(a)

			_, err := a.Build(features.Names())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)

			var merr *ModelError
			assert.ErrorAs(t, err, &merr)
		})
	}
}

func TestTreeValidate(t *testing.T) {
	valid := Tree{
		Feature:   []int{0, 0, 0},
		Threshold: []float64{0.5, 0, 0},
		Left:      []int{1, -1, -1},
		Right:     []int{2, -1, -1},
		Value:     []float64{0, 0.2, 0.8},
	}
	require.NoError(t, valid.Validate(1))
	assert.Equal(t, 0.2, valid.leaf([]float64{0.5}))
	assert.Equal(t, 0.8, valid.leaf([]float64{0.6}))

	oneChild := copyTree(valid)
	oneChild.Right[0] = -1
	assert.Error(t, oneChild.Validate(1))

	ragged := copyTree(valid)
	ragged.Threshold = ragged.Threshold[:2]
	assert.Error(t, ragged.Validate(1))

	assert.Error(t, (&Tree{}).Validate(1))
}

func TestArtifactInfo(t *testing.T) {
	info := SampleArtifact().Info()
	assert.Equal(t, "1.0.0", info.Version)
	assert.Equal(t, features.Names(), info.Features)
	assert.True(t, info.Calibrated)
	require.Len(t, info.BaseLearners, 3)
	assert.Equal(t, KindRandomForest, info.BaseLearners[0].Kind)
	assert.Equal(t, 4, info.BaseLearners[0].Trees)
	assert.Equal(t, 20, info.BackgroundRows)
}

func TestBackgroundRows(t *testing.T) {
	a := SampleArtifact()
	assert.Len(t, a.BackgroundRows(0), 20)
	assert.Len(t, a.BackgroundRows(5), 5)
	assert.Len(t, a.BackgroundRows(50), 20)

	rows := a.BackgroundRows(1)
	rows[0][0] = -1
	assert.Equal(t, 63.0, a.Background[0][0])
}
