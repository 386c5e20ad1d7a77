package pattern

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput indicates malformed caller input, such as an empty
	// example set or a blank matched text.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates an unknown pattern identifier.
	ErrNotFound = errors.New("pattern not found")

	// ErrConflict indicates refinement suggestions were computed against a
	// now-stale pattern state. The caller must re-fetch and retry.
	ErrConflict = errors.New("refinement conflict: pattern state has changed")
)

// CompileError reports a stored expression that is not a valid matching
// expression. It is surfaced per-pattern and never fatal to a multi-pattern scan.
type CompileError struct {
	PatternID  string
	Expression string
	Err        error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("pattern %s: expression %q does not compile: %v", e.PatternID, e.Expression, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}
