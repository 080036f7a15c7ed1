package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel kinds for the valuation domain. Use errors.Is at the boundaries.
var (
	ErrValidation              = errors.New("validation failed")
	ErrInvalidFilter           = fmt.Errorf("%w: invalid filter", ErrValidation)
	ErrInsufficientComparables = errors.New("insufficient comparables")
	ErrNoComparablesFound      = errors.New("no comparables found")
	ErrMissingRuleParameter    = errors.New("missing rule parameter")
	ErrStaleComparable         = errors.New("stale comparable")
	ErrConflict                = errors.New("version conflict")
	ErrNotFound                = errors.New("not found")
)

// ValidationError names the field and the constraint it violates.
type ValidationError struct {
	Field      string `json:"field"`
	Constraint string `json:"constraint"`

	kind error
}

// NewValidationError returns a ValidationError of kind ErrValidation.
func NewValidationError(field, constraint string) *ValidationError {
	return &ValidationError{Field: field, Constraint: constraint, kind: ErrValidation}
}

// NewFilterError returns a ValidationError of kind ErrInvalidFilter.
func NewFilterError(field, constraint string) *ValidationError {
	return &ValidationError{Field: field, Constraint: constraint, kind: ErrInvalidFilter}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", e.Unwrap(), e.Field, e.Constraint)
}

func (e *ValidationError) Unwrap() error {
	if e.kind == nil {
		return ErrValidation
	}
	return e.kind
}

// ValidationErrors collects several violations of one input.
type ValidationErrors []*ValidationError

func (es ValidationErrors) Error() string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.Field + " " + e.Constraint
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (es ValidationErrors) Unwrap() []error {
	out := make([]error, len(es))
	for i, e := range es {
		out[i] = e
	}
	return out
}

// errOrNil returns nil for an empty list so callers can return it directly.
func (es ValidationErrors) errOrNil() error {
	switch len(es) {
	case 0:
		return nil
	case 1:
		return es[0]
	default:
		return es
	}
}
