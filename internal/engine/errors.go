package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"heart-risk/internal/features"
	"heart-risk/internal/ml"
)

// Failure kinds used in metrics labels and serialized row errors.
const (
	KindSchema   = "schema"
	KindModel    = "model"
	KindCanceled = "canceled"
	KindPanic    = "panic"
	KindInternal = "internal"
)

// ErrNotReady is the cause carried by the system ModelError when the engine
// has no usable model.
var ErrNotReady = errors.New("engine not ready")

// RowError is the failure of one batch row. It wraps the *features.SchemaError
// or *ml.ModelError that caused it.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Kind classifies the cause.
func (e *RowError) Kind() string { return ErrorKind(e.Err) }

// MarshalJSON renders the row error with its kind and, for schema errors, the
// full violation list.
func (e *RowError) MarshalJSON() ([]byte, error) {
	out := struct {
		Row     int                   `json:"row"`
		Kind    string                `json:"kind"`
		Message string                `json:"message"`
		Schema  *features.SchemaError `json:"violations,omitempty"`
	}{Row: e.Row, Kind: e.Kind(), Message: e.Err.Error()}

	var serr *features.SchemaError
	if errors.As(e.Err, &serr) {
		out.Schema = serr
	}
	return json.Marshal(out)
}

// ErrorKind maps an engine error to its failure kind.
func ErrorKind(err error) string {
	var serr *features.SchemaError
	var merr *ml.ModelError
	var perr *panicError
	switch {
	case errors.As(err, &serr):
		return KindSchema
	case errors.As(err, &merr):
		return KindModel
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.As(err, &perr):
		return KindPanic
	default:
		return KindInternal
	}
}

type panicError struct {
	value any
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

func notReady(op string) *ml.ModelError {
	return &ml.ModelError{Op: op, Kind: ml.ErrArtifactMissing, Err: ErrNotReady}
}
