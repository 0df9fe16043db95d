package features

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// ClinicalRecord is a validated feature vector in canonical order.
// The zero value is not a valid record; obtain one from Validate or FromVector.
type ClinicalRecord struct {
	values [Count]float64
}

// Vector returns a copy of the values in canonical order.
func (r ClinicalRecord) Vector() []float64 {
	out := make([]float64, Count)
	copy(out, r.values[:])
	return out
}

// Value returns the value of the feature at canonical index i.
func (r ClinicalRecord) Value(i int) float64 {
	return r.values[i]
}

// Map returns the record as a name to value mapping.
func (r ClinicalRecord) Map() map[string]float64 {
	m := make(map[string]float64, Count)
	for i, f := range schema {
		m[f.Name] = r.values[i]
	}
	return m
}

// FieldViolation names a field whose value was rejected.
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// SchemaError lists every problem found in one raw input. It is caller-fixable.
type SchemaError struct {
	Missing    []string         `json:"missing,omitempty"`
	Unexpected []string         `json:"unexpected,omitempty"`
	Invalid    []FieldViolation `json:"invalid,omitempty"`
}

func (e *SchemaError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, "unexpected: "+strings.Join(e.Unexpected, ", "))
	}
	for _, v := range e.Invalid {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Reason))
	}
	return "schema validation failed: " + strings.Join(parts, "; ")
}

// Fields returns every field named by the error, in report order.
func (e *SchemaError) Fields() []string {
	out := make([]string, 0, len(e.Missing)+len(e.Unexpected)+len(e.Invalid))
	out = append(out, e.Missing...)
	out = append(out, e.Unexpected...)
	for _, v := range e.Invalid {
		out = append(out, v.Field)
	}
	return out
}

func (e *SchemaError) empty() bool {
	return len(e.Missing) == 0 && len(e.Unexpected) == 0 && len(e.Invalid) == 0
}

// Validate checks raw input against the schema. On failure it returns a
// *SchemaError describing all violations at once.
func Validate(raw map[string]any) (ClinicalRecord, error) {
	var rec ClinicalRecord
	verr := &SchemaError{}

	for name := range raw {
		if _, ok := index[name]; !ok {
			verr.Unexpected = append(verr.Unexpected, name)
		}
	}
	sort.Strings(verr.Unexpected)

	for i, f := range schema {
		v, ok := raw[f.Name]
		if !ok {
			verr.Missing = append(verr.Missing, f.Name)
			continue
		}
		x, reason := coerce(f, v)
		if reason != "" {
			verr.Invalid = append(verr.Invalid, FieldViolation{Field: f.Name, Reason: reason})
			continue
		}
		rec.values[i] = x
	}

	if !verr.empty() {
		return ClinicalRecord{}, verr
	}
	return rec, nil
}

// FromVector validates an already ordered vector.
func FromVector(x []float64) (ClinicalRecord, error) {
	if len(x) != Count {
		return ClinicalRecord{}, fmt.Errorf("expected %d features, got %d", Count, len(x))
	}
	raw := make(map[string]any, Count)
	for i, f := range schema {
		raw[f.Name] = x[i]
	}
	return Validate(raw)
}

func coerce(f Feature, v any) (float64, string) {
	switch t := v.(type) {
	case nil:
		return 0, "value is null"
	case bool:
		return 0, "not numeric: boolean"
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return 0, "value is empty"
		}
		v = t
	case json.Number, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
	default:
		return 0, fmt.Sprintf("not numeric: %T", v)
	}

	x, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, fmt.Sprintf("not numeric: %v", v)
	}
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, "not a finite number"
	}

	switch f.Kind {
	case Binary:
		if x != 0 && x != 1 {
			return 0, fmt.Sprintf("must be 0 or 1, got %g", x)
		}
	case Categorical:
		if x != math.Trunc(x) {
			return 0, fmt.Sprintf("must be an integer category, got %g", x)
		}
		if x < f.Min || x > f.Max {
			return 0, fmt.Sprintf("must be in %g..%g, got %g", f.Min, f.Max, x)
		}
	default:
		if x < f.Min || x > f.Max {
			return 0, fmt.Sprintf("must be in [%g, %g] %s, got %g", f.Min, f.Max, f.Unit, x)
		}
	}
	return x, ""
}
