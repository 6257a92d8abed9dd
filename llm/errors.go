package llm

import (
	"errors"
	"fmt"
)

// Error types for classifying generation failures.

// TransientError represents a temporary error that may succeed on retry.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as transient (retryable).
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError represents a permanent error that should not be retried.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// NewFatalError wraps an error as fatal (non-retryable).
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsTransient returns true if the error is transient and should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal returns true if the error is fatal and should not be retried.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// ParseError indicates a structured completion produced output that failed
// JSON extraction or schema unmarshalling even after the repair pass.
// Permanent for the unit of work that issued the call.
type ParseError struct {
	Detail string
	err    error
}

func (e *ParseError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("structured output parse failed: %s", e.Detail)
	}
	return fmt.Sprintf("structured output parse failed: %s: %v", e.Detail, e.err)
}

func (e *ParseError) Unwrap() error {
	return e.err
}

// NewParseError wraps an error as a structured-output parse failure.
func NewParseError(detail string, err error) error {
	return &ParseError{Detail: detail, err: err}
}

// IsParseError returns true if the error is a structured-output parse failure.
func IsParseError(err error) bool {
	var p *ParseError
	return errors.As(err, &p)
}
