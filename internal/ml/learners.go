package ml

import (
	"fmt"
	"math"
)

// Tree is a binary decision tree stored as a flattened node table.
// Node i is a leaf when Left[i] == -1; otherwise x[Feature[i]] <= Threshold[i]
// descends to Left[i], else Right[i]. Children always have a larger index
// than their parent, which Validate enforces.
type Tree struct {
	Feature   []int     `json:"feature"`
	Threshold []float64 `json:"threshold"`
	Left      []int     `json:"left"`
	Right     []int     `json:"right"`
	Value     []float64 `json:"value"`
}

// Validate checks the node table is well formed for width-n input.
func (t *Tree) Validate(n int) error {
	size := len(t.Value)
	if size == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	if len(t.Feature) != size || len(t.Threshold) != size || len(t.Left) != size || len(t.Right) != size {
		return fmt.Errorf("tree arrays have inconsistent lengths")
	}
	for i := 0; i < size; i++ {
		if math.IsNaN(t.Value[i]) || math.IsInf(t.Value[i], 0) {
			return fmt.Errorf("node %d has non-finite value", i)
		}
		if t.Left[i] == -1 {
			if t.Right[i] != -1 {
				return fmt.Errorf("node %d has only one child", i)
			}
			continue
		}
		if t.Feature[i] < 0 || t.Feature[i] >= n {
			return fmt.Errorf("node %d splits on feature %d outside [0,%d)", i, t.Feature[i], n)
		}
		if t.Left[i] <= i || t.Left[i] >= size || t.Right[i] <= i || t.Right[i] >= size {
			return fmt.Errorf("node %d has out-of-order children", i)
		}
	}
	return nil
}

func (t *Tree) leaf(x []float64) float64 {
	node := 0
	for t.Left[node] != -1 {
		if x[t.Feature[node]] <= t.Threshold[node] {
			node = t.Left[node]
		} else {
			node = t.Right[node]
		}
	}
	return t.Value[node]
}

// RandomForest averages the leaf probabilities of its trees.
type RandomForest struct {
	name  string
	trees []Tree
	width int
}

func (m *RandomForest) Name() string { return m.name }
func (m *RandomForest) Kind() string { return KindRandomForest }

func (m *RandomForest) PredictProba(x []float64) (float64, error) {
	if len(x) != m.width {
		return 0, fmt.Errorf("%s: expected %d features, got %d", m.name, m.width, len(x))
	}
	var sum float64
	for i := range m.trees {
		sum += m.trees[i].leaf(x)
	}
	return checkProba(m.name, sum/float64(len(m.trees)))
}

// GradientBoosting sums leaf margins onto a base margin and applies the
// logistic link.
type GradientBoosting struct {
	name      string
	baseScore float64
	trees     []Tree
	width     int
}

func (m *GradientBoosting) Name() string { return m.name }
func (m *GradientBoosting) Kind() string { return KindGradientBoosting }

func (m *GradientBoosting) PredictProba(x []float64) (float64, error) {
	if len(x) != m.width {
		return 0, fmt.Errorf("%s: expected %d features, got %d", m.name, m.width, len(x))
	}
	margin := m.baseScore
	for i := range m.trees {
		margin += m.trees[i].leaf(x)
	}
	return checkProba(m.name, sigmoid(margin))
}

// Logistic is a linear model with a logistic link.
type Logistic struct {
	name      string
	coef      []float64
	intercept float64
}

func (m *Logistic) Name() string { return m.name }
func (m *Logistic) Kind() string { return KindLogistic }

func (m *Logistic) PredictProba(x []float64) (float64, error) {
	if len(x) != len(m.coef) {
		return 0, fmt.Errorf("%s: expected %d features, got %d", m.name, len(m.coef), len(x))
	}
	return checkProba(m.name, sigmoid(dot(m.coef, x)+m.intercept))
}

func checkProba(name string, p float64) (float64, error) {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("%s: invalid probability %v", name, p)
	}
	return p, nil
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
