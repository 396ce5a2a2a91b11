package transformer

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRowRejected matches (via errors.Is) every non-fatal *CoercionError: the
// row was dropped and the run continues.
var ErrRowRejected = errors.New("row rejected")

// Field-level failure reasons.
var (
	ErrInvalidNumber    = errors.New("not a number")
	ErrNegative         = errors.New("negative value")
	ErrNotIntegral      = errors.New("not an integer")
	ErrOutOfRange       = errors.New("out of range")
	ErrInvalidTimestamp = errors.New("unrecognized timestamp")
	ErrUnsupportedType  = errors.New("unsupported value type")
	ErrMissingPartition = errors.New("missing partition value")
)

// FieldError describes one field that failed coercion.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s=%q: %v", e.Field, e.Value, e.Err)
}

// CoercionError is returned by Apply when a row cannot be produced. Fatal is
// set under the fail_job policy; otherwise the error matches ErrRowRejected.
type CoercionError struct {
	Line   int
	Source string
	Fields []FieldError
	Fatal  bool
}

func (e *CoercionError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("coerce line %d (%s): %s", e.Line, e.Source, strings.Join(parts, "; "))
}

// Is makes errors.Is(err, ErrRowRejected) true for non-fatal errors.
func (e *CoercionError) Is(target error) bool {
	return target == ErrRowRejected && !e.Fatal
}

// Unwrap exposes the first field reason so callers can match on it.
func (e *CoercionError) Unwrap() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e.Fields[0].Err
}

// Reasons returns the field failures as short strings for error aggregation.
func (e *CoercionError) Reasons() []string {
	out := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		out[i] = f.Field + ": " + f.Err.Error()
	}
	return out
}
