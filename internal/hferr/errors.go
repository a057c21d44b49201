// Package hferr defines the error taxonomy shared by the loader, fitter and
// evaluator. Each typed error unwraps to a sentinel so callers may match with
// either errors.Is or errors.As.
package hferr

import (
	"errors"
	"fmt"
)

var (
	ErrSchema           = errors.New("schema mismatch")
	ErrInsufficientData = errors.New("insufficient data")
	ErrFit              = errors.New("degenerate fit")
	ErrDegenerateFold   = errors.New("degenerate fold")
	ErrInvalidRequest   = errors.New("invalid request")
)

// SchemaError reports a dimension or column mismatch between the wild-type
// encoding and the variant table, or an unusable label column.
type SchemaError struct {
	Path   string `json:"path,omitempty"`
	Row    int    `json:"row,omitempty"`
	Column string `json:"column,omitempty"`
	Reason string `json:"reason"`
}

func (e *SchemaError) Error() string {
	msg := "schema error"
	if e.Path != "" {
		msg += " in " + e.Path
	}
	if e.Row > 0 {
		msg += fmt.Sprintf(" row %d", e.Row)
	}
	if e.Column != "" {
		msg += fmt.Sprintf(" column %q", e.Column)
	}
	return msg + ": " + e.Reason
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

// InsufficientDataError reports too few rows to fit or to form a fold.
type InsufficientDataError struct {
	Op   string `json:"op"`
	Rows int    `json:"rows"`
	Min  int    `json:"min"`
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: have %d rows, need at least %d", e.Op, e.Rows, e.Min)
}

func (e *InsufficientDataError) Unwrap() error { return ErrInsufficientData }

// FitError reports a rank-deficient regression. Term names the predictor
// whose weight was fixed at zero, when the fitter could recover.
type FitError struct {
	Term   string `json:"term,omitempty"`
	Reason string `json:"reason"`
}

func (e *FitError) Error() string {
	if e.Term != "" {
		return fmt.Sprintf("degenerate fit: %s term: %s", e.Term, e.Reason)
	}
	return "degenerate fit: " + e.Reason
}

func (e *FitError) Unwrap() error { return ErrFit }

// DegenerateFoldError reports a test fold whose rank correlation is undefined.
type DegenerateFoldError struct {
	Rows   int    `json:"rows"`
	Reason string `json:"reason"`
}

func (e *DegenerateFoldError) Error() string {
	return fmt.Sprintf("degenerate fold (%d rows): %s", e.Rows, e.Reason)
}

func (e *DegenerateFoldError) Unwrap() error { return ErrDegenerateFold }

func Schema(reason string, args ...any) *SchemaError {
	return &SchemaError{Reason: fmt.Sprintf(reason, args...)}
}
