package explain

import (
	"math"
	"sort"
	"sync"
)

// FeatureImportance is the aggregate attribution of one feature over many
// explained predictions.
type FeatureImportance struct {
	Feature          string  `json:"feature"`
	MeanAbsolute     float64 `json:"mean_abs_contribution"`
	MeanContribution float64 `json:"mean_contribution"`
	MaxAbsolute      float64 `json:"max_abs_contribution"`
	Count            int     `json:"count"`
}

type importanceStats struct {
	absSum float64
	sum    float64
	maxAbs float64
	count  int
}

// ImportanceTracker accumulates per-feature contribution statistics. It is
// safe for concurrent use.
type ImportanceTracker struct {
	mu    sync.RWMutex
	order []string
	stats map[string]*importanceStats
	n     int
}

// NewImportanceTracker creates a tracker. names fixes the tie order of the
// ranking; features not listed are appended as they are first seen.
func NewImportanceTracker(names []string) *ImportanceTracker {
	t := &ImportanceTracker{
		order: make([]string, 0, len(names)),
		stats: make(map[string]*importanceStats, len(names)),
	}
	for _, name := range names {
		t.entry(name)
	}
	return t
}

func (t *ImportanceTracker) entry(name string) *importanceStats {
	s, ok := t.stats[name]
	if !ok {
		s = &importanceStats{}
		t.stats[name] = s
		t.order = append(t.order, name)
	}
	return s
}

// Add records one attribution.
func (t *ImportanceTracker) Add(contribs []Contribution) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.n++
	for _, c := range contribs {
		s := t.entry(c.Feature)
		abs := math.Abs(c.Contribution)
		s.absSum += abs
		s.sum += c.Contribution
		s.maxAbs = math.Max(s.maxAbs, abs)
		s.count++
	}
}

// Count is the number of attributions recorded.
func (t *ImportanceTracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.n
}

// Ranking returns every tracked feature by descending mean absolute
// contribution. Features never seen have zero means and sort last.
func (t *ImportanceTracker) Ranking() []FeatureImportance {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]FeatureImportance, 0, len(t.order))
	for _, name := range t.order {
		s := t.stats[name]
		fi := FeatureImportance{Feature: name, MaxAbsolute: s.maxAbs, Count: s.count}
		if s.count > 0 {
			fi.MeanAbsolute = s.absSum / float64(s.count)
			fi.MeanContribution = s.sum / float64(s.count)
		}
		out = append(out, fi)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MeanAbsolute > out[j].MeanAbsolute
	})
	return out
}
