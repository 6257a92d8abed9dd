// Package fault defines the error taxonomy shared across workflow components.
// Callers classify failures with errors.As via the Is* helpers rather than
// matching on error strings.
package fault

import (
	"errors"
	"fmt"
)

// ValidationError indicates caller-supplied input is malformed or references
// an entity that does not exist. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NewValidationErrorf creates a ValidationError with a formatted reason.
func NewValidationErrorf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation returns true if the error is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// ConsistencyViolation indicates an operation would corrupt an invariant of
// the persisted graph: a cycle-closing dependency edge, a cross-project
// endpoint, or a self-loop. Rejected at the point of construction.
type ConsistencyViolation struct {
	Entity string
	Detail string
}

func (e *ConsistencyViolation) Error() string {
	return fmt.Sprintf("consistency violation on %s: %s", e.Entity, e.Detail)
}

// NewConsistencyViolation creates a ConsistencyViolation for the given entity.
func NewConsistencyViolation(entity, detail string) error {
	return &ConsistencyViolation{Entity: entity, Detail: detail}
}

// NewConsistencyViolationf creates a ConsistencyViolation with a formatted detail.
func NewConsistencyViolationf(entity, format string, args ...any) error {
	return &ConsistencyViolation{Entity: entity, Detail: fmt.Sprintf(format, args...)}
}

// IsConsistencyViolation returns true if the error is a ConsistencyViolation.
func IsConsistencyViolation(err error) bool {
	var c *ConsistencyViolation
	return errors.As(err, &c)
}

// PartialFailure records one unit failing inside a parallel batch while its
// siblings continue. Batches aggregate these instead of aborting.
type PartialFailure struct {
	Unit string
	Err  error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("unit %s failed: %v", e.Unit, e.Err)
}

func (e *PartialFailure) Unwrap() error {
	return e.Err
}

// NewPartialFailure wraps a unit error for batch aggregation.
func NewPartialFailure(unit string, err error) *PartialFailure {
	return &PartialFailure{Unit: unit, Err: err}
}
