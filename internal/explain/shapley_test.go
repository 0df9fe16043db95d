package explain

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"heart-risk/internal/features"
	"heart-risk/internal/ml"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linear(w []float64) ValueFunc {
	return func(x []float64) (float64, error) {
		var s float64
		for i := range w {
			s += w[i] * x[i]
		}
		return s, nil
	}
}

func TestExplain_LinearModelIsExact(t *testing.T) {
	w := []float64{2, -1, 0.5}
	bg := [][]float64{{0, 0, 0}, {1, 2, 3}}
	e, err := NewExplainer(linear(w), bg, []string{"a", "b", "c"}, Options{Permutations: 4, Seed: 7})
	require.NoError(t, err)
	assert.InDelta(t, 0.5*(0)+0.5*(2-2+1.5), e.Baseline(), 1e-12)

	x := []float64{3, 1, 1}
	fx, _ := linear(w)(x)
	a, err := e.Explain(x, fx)
	require.NoError(t, err)

	// phi_i = w_i * (x_i - mean(b_i))
	want := map[string]float64{"a": 2 * (3 - 0.5), "b": -1 * (1 - 1), "c": 0.5 * (1 - 1.5)}
	for _, c := range a.Contributions {
		assert.InDelta(t, want[c.Feature], c.Contribution, 1e-12, c.Feature)
	}
	assert.Equal(t, []string{"a", "c", "b"}, featureOrder(a))
	assert.InDelta(t, fx-e.Baseline(), a.Sum(), 1e-12)
}

func TestExplain_SumMatchesModelDelta(t *testing.T) {
	art := ml.SampleArtifact()
	m, err := art.Build(features.Names())
	require.NoError(t, err)

	e, err := NewExplainer(m.Probability, art.BackgroundRows(0), features.Names(), Options{Seed: 42})
	require.NoError(t, err)
	assert.InDelta(t, 0.3781, e.Baseline(), 1e-3)

	r := rand.New(rand.NewPCG(9, 9))
	records := [][]float64{art.Background[0]}
	for i := 0; i < 10; i++ {
		records = append(records, art.Background[r.IntN(len(art.Background))])
	}
	records = append(records, []float64{40, 0, 0, 110, 180, 0, 0, 180, 0, 0, 2, 0, 2})

	for _, x := range records {
		fx, err := m.Probability(x)
		require.NoError(t, err)
		a, err := e.Explain(x, fx)
		require.NoError(t, err)

		assert.Equal(t, fx, a.Prediction)
		assert.Len(t, a.Contributions, features.Count)
		assert.InDelta(t, fx-a.Baseline, a.Sum(), 1e-9)
	}
}

func TestExplain_Deterministic(t *testing.T) {
	art := ml.SampleArtifact()
	m, err := art.Build(features.Names())
	require.NoError(t, err)

	build := func() *Explainer {
		e, err := NewExplainer(m.Probability, art.BackgroundRows(0), features.Names(), Options{Permutations: 6, Seed: 1})
		require.NoError(t, err)
		return e
	}
	x := art.Background[0]
	fx, err := m.Probability(x)
	require.NoError(t, err)

	first, err := build().Explain(x, fx)
	require.NoError(t, err)
	second, err := build().Explain(x, fx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExplain_SortedByMagnitude(t *testing.T) {
	art := ml.SampleArtifact()
	m, err := art.Build(features.Names())
	require.NoError(t, err)
	e, err := NewExplainer(m.Probability, art.BackgroundRows(0), features.Names(), Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultPermutations, e.Permutations())

	x := art.Background[18]
	fx, err := m.Probability(x)
	require.NoError(t, err)
	a, err := e.Explain(x, fx)
	require.NoError(t, err)

	for i := 1; i < len(a.Contributions); i++ {
		assert.GreaterOrEqual(t, math.Abs(a.Contributions[i-1].Contribution), math.Abs(a.Contributions[i].Contribution))
	}
	top, ok := a.Top()
	require.True(t, ok)
	assert.Equal(t, a.Contributions[0], top)
}

func TestExplain_TiesKeepDeclarationOrder(t *testing.T) {
	e, err := NewExplainer(linear([]float64{0, 0, 0, 0}), [][]float64{{0, 0, 0, 0}}, []string{"w", "x", "y", "z"}, Options{Permutations: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, e.Permutations())

	a, err := e.Explain([]float64{1, 1, 1, 1}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"w", "x", "y", "z"}, featureOrder(a))
}

func TestExplain_Errors(t *testing.T) {
	_, err := NewExplainer(nil, [][]float64{{1}}, []string{"a"}, Options{})
	assert.Error(t, err)
	_, err = NewExplainer(linear([]float64{1}), nil, []string{"a"}, Options{})
	assert.Error(t, err)
	_, err = NewExplainer(linear([]float64{1}), [][]float64{{1, 2}}, []string{"a"}, Options{})
	assert.Error(t, err)

	failing := func(x []float64) (float64, error) {
		if x[0] > 5 {
			return 0, errors.New("boom")
		}
		return x[0], nil
	}
	e, err := NewExplainer(failing, [][]float64{{0}}, []string{"a"}, Options{})
	require.NoError(t, err)
	_, err = e.Explain([]float64{9}, 9)
	assert.Error(t, err)
	_, err = e.Explain([]float64{1, 2}, 0)
	assert.Error(t, err)
}

func featureOrder(a Attribution) []string {
	out := make([]string, len(a.Contributions))
	for i, c := range a.Contributions {
		out[i] = c.Feature
	}
	return out
}
