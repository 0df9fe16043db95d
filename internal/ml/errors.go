package ml

import (
	"errors"
	"fmt"
)

// Sentinel kinds carried by ModelError. Test with errors.Is.
var (
	ErrArtifactMissing = errors.New("model artifact missing")
	ErrArtifactCorrupt = errors.New("model artifact corrupt")
	ErrFeatureMismatch = errors.New("artifact feature order does not match schema")
	ErrLearnerCount    = errors.New("base learner count mismatch")
	ErrScoring         = errors.New("model scoring failed")
)

// ModelError is a system-fixable failure of the model artifact or of scoring
// against it. It is never worth retrying against the same artifact.
type ModelError struct {
	Op   string // load, validate, score, combine
	Kind error  // one of the Err* sentinels
	Err  error  // underlying cause, may be nil
}

func (e *ModelError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("model %s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("model %s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *ModelError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func modelErr(op string, kind error, format string, args ...any) *ModelError {
	return &ModelError{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}
