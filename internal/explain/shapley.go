// Package explain attributes a model's output to its input features with
// sampled Shapley values over a background dataset.
package explain

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sort"
)

// DefaultPermutations is the number of feature orderings sampled per
// background row.
const DefaultPermutations = 8

// ValueFunc is the model being explained. It must be deterministic and safe
// for concurrent use.
type ValueFunc func(x []float64) (float64, error)

// Options tune the sampler.
type Options struct {
	// Permutations per background row. Odd values are rounded up so that every
	// ordering is paired with its reverse.
	Permutations int
	Seed         uint64
}

// Contribution is one feature's share of the prediction.
type Contribution struct {
	Feature      string  `json:"feature"`
	Contribution float64 `json:"contribution"`
}

// Attribution explains one prediction. The contributions sum to
// Prediction - Baseline.
type Attribution struct {
	Baseline      float64        `json:"baseline_probability"`
	Prediction    float64        `json:"probability"`
	Contributions []Contribution `json:"contributions"`
}

// Sum adds up the contributions.
func (a Attribution) Sum() float64 {
	var s float64
	for _, c := range a.Contributions {
		s += c.Contribution
	}
	return s
}

// Top returns the contribution with the largest magnitude.
func (a Attribution) Top() (Contribution, bool) {
	if len(a.Contributions) == 0 {
		return Contribution{}, false
	}
	return a.Contributions[0], true
}

// Explainer is immutable after construction and safe for concurrent use.
type Explainer struct {
	fn           ValueFunc
	names        []string
	background   [][]float64
	bgValues     []float64
	baseline     float64
	permutations int
	seed         uint64
}

// NewExplainer evaluates fn over every background row once to fix the
// baseline.
func NewExplainer(fn ValueFunc, background [][]float64, names []string, opts Options) (*Explainer, error) {
	if fn == nil {
		return nil, errors.New("explain: nil value function")
	}
	if len(background) == 0 {
		return nil, errors.New("explain: empty background dataset")
	}
	if len(names) == 0 {
		return nil, errors.New("explain: no feature names")
	}

	perms := opts.Permutations
	if perms <= 0 {
		perms = DefaultPermutations
	}
	if perms%2 == 1 {
		perms++
	}

	e := &Explainer{
		fn:           fn,
		names:        append([]string(nil), names...),
		background:   make([][]float64, len(background)),
		bgValues:     make([]float64, len(background)),
		permutations: perms,
		seed:         opts.Seed,
	}

	var total float64
	for i, row := range background {
		if len(row) != len(names) {
			return nil, fmt.Errorf("explain: background row %d has %d values, want %d", i, len(row), len(names))
		}
		e.background[i] = append([]float64(nil), row...)
		v, err := fn(e.background[i])
		if err != nil {
			return nil, fmt.Errorf("explain: background row %d: %w", i, err)
		}
		e.bgValues[i] = v
		total += v
	}
	e.baseline = total / float64(len(background))
	return e, nil
}

// Baseline is the mean model output over the background rows.
func (e *Explainer) Baseline() float64 { return e.baseline }

// Permutations is the effective number of orderings per background row.
func (e *Explainer) Permutations() int { return e.permutations }

// BackgroundSize is the number of background rows in use.
func (e *Explainer) BackgroundSize() int { return len(e.background) }

// Explain attributes fx = fn(x) across the features of x. Each sampled
// ordering moves the background row to x one feature at a time, crediting
// each feature with the change in model output; the increments of one walk
// telescope to fn(x) - fn(b).
func (e *Explainer) Explain(x []float64, fx float64) (Attribution, error) {
	n := len(e.names)
	if len(x) != n {
		return Attribution{}, fmt.Errorf("explain: record has %d values, want %d", len(x), n)
	}

	rng := rand.New(rand.NewPCG(e.seed, hashVector(x)))
	phi := make([]float64, n)
	z := make([]float64, n)
	order := make([]int, n)

	for bi, b := range e.background {
		for p := 0; p < e.permutations; p++ {
			if p%2 == 0 {
				for i := range order {
					order[i] = i
				}
				rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
			} else {
				reverse(order)
			}

			copy(z, b)
			prev := e.bgValues[bi]
			for _, k := range order {
				if z[k] == x[k] {
					continue
				}
				z[k] = x[k]
				cur, err := e.fn(z)
				if err != nil {
					return Attribution{}, fmt.Errorf("explain: evaluate coalition: %w", err)
				}
				phi[k] += cur - prev
				prev = cur
			}
		}
	}

	samples := float64(len(e.background) * e.permutations)
	contribs := make([]Contribution, n)
	for i := range phi {
		v := phi[i] / samples
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Attribution{}, fmt.Errorf("explain: non-finite contribution for %s", e.names[i])
		}
		contribs[i] = Contribution{Feature: e.names[i], Contribution: v}
	}
	// Stable sort keeps declaration order among equal magnitudes.
	sort.SliceStable(contribs, func(i, j int) bool {
		return math.Abs(contribs[i].Contribution) > math.Abs(contribs[j].Contribution)
	})

	return Attribution{
		Baseline:      e.baseline,
		Prediction:    fx,
		Contributions: contribs,
	}, nil
}

func reverse(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// hashVector is FNV-1a over the IEEE-754 bits of x.
func hashVector(x []float64) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, v := range x {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	return h.Sum64()
}
