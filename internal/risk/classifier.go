// Package risk maps a calibrated probability onto a discrete risk category
// and a binary decision.
package risk

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Category is the name of a risk band.
type Category string

const (
	Low      Category = "LOW"
	Moderate Category = "MODERATE"
	High     Category = "HIGH"
)

// DefaultDecisionThreshold is the probability at or above which a record is
// labelled positive.
const DefaultDecisionThreshold = 0.5

// Band is one interval of the partition. A band covers [Lower, next.Lower);
// the last band covers [Lower, 1].
type Band struct {
	Name  Category `json:"name" yaml:"name"`
	Lower float64  `json:"lower" yaml:"lower"`
}

// DefaultBands returns LOW [0,0.3), MODERATE [0.3,0.6), HIGH [0.6,1].
func DefaultBands() []Band {
	return []Band{
		{Name: Low, Lower: 0},
		{Name: Moderate, Lower: 0.3},
		{Name: High, Lower: 0.6},
	}
}

// ParseBands reads "NAME:lower,NAME:lower,..." as used in configuration.
func ParseBands(s string) ([]Band, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty risk band list")
	}
	var bands []Band
	for _, part := range strings.Split(s, ",") {
		name, lower, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("risk band %q: want NAME:lower", part)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(lower), 64)
		if err != nil {
			return nil, fmt.Errorf("risk band %q: %w", part, err)
		}
		bands = append(bands, Band{Name: Category(strings.ToUpper(strings.TrimSpace(name))), Lower: v})
	}
	return bands, nil
}

// FormatBands is the inverse of ParseBands.
func FormatBands(bands []Band) string {
	parts := make([]string, len(bands))
	for i, b := range bands {
		parts[i] = fmt.Sprintf("%s:%s", b.Name, strconv.FormatFloat(b.Lower, 'f', -1, 64))
	}
	return strings.Join(parts, ",")
}

// ValidateBands checks that bands form an ordered partition of [0,1].
func ValidateBands(bands []Band) error {
	if len(bands) == 0 {
		return fmt.Errorf("at least one risk band is required")
	}
	if bands[0].Lower != 0 {
		return fmt.Errorf("first risk band %s must start at 0, got %v", bands[0].Name, bands[0].Lower)
	}
	seen := make(map[Category]bool, len(bands))
	for i, b := range bands {
		if b.Name == "" {
			return fmt.Errorf("risk band %d has no name", i)
		}
		if seen[b.Name] {
			return fmt.Errorf("duplicate risk band %s", b.Name)
		}
		seen[b.Name] = true
		if math.IsNaN(b.Lower) || b.Lower < 0 || b.Lower > 1 {
			return fmt.Errorf("risk band %s lower bound %v outside [0,1]", b.Name, b.Lower)
		}
		if i > 0 && b.Lower <= bands[i-1].Lower {
			return fmt.Errorf("risk band %s lower bound %v does not exceed %s (%v)", b.Name, b.Lower, bands[i-1].Name, bands[i-1].Lower)
		}
	}
	return nil
}

// Classifier is immutable once built and safe for concurrent use.
type Classifier struct {
	bands     []Band
	threshold float64
}

// NewClassifier validates the band partition and decision threshold.
func NewClassifier(bands []Band, threshold float64) (*Classifier, error) {
	if err := ValidateBands(bands); err != nil {
		return nil, err
	}
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("decision threshold %v outside [0,1]", threshold)
	}
	b := make([]Band, len(bands))
	copy(b, bands)
	return &Classifier{bands: b, threshold: threshold}, nil
}

// Default returns the classifier built from DefaultBands and
// DefaultDecisionThreshold.
func Default() *Classifier {
	c, err := NewClassifier(DefaultBands(), DefaultDecisionThreshold)
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns the band containing p.
func (c *Classifier) Classify(p float64) (Category, error) {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return "", fmt.Errorf("probability %v outside [0,1]", p)
	}
	cat := c.bands[0].Name
	for _, b := range c.bands[1:] {
		if p < b.Lower {
			break
		}
		cat = b.Name
	}
	return cat, nil
}

// Label is the binary decision: 1 iff p >= threshold.
func (c *Classifier) Label(p float64) int {
	if p >= c.threshold {
		return 1
	}
	return 0
}

// Threshold returns the decision threshold.
func (c *Classifier) Threshold() float64 { return c.threshold }

// Categories lists band names low to high.
func (c *Classifier) Categories() []Category {
	out := make([]Category, len(c.bands))
	for i, b := range c.bands {
		out[i] = b.Name
	}
	return out
}

// Bands returns a copy of the partition.
func (c *Classifier) Bands() []Band {
	out := make([]Band, len(c.bands))
	copy(out, c.bands)
	return out
}
