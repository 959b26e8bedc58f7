/*
errors.go - Centralized error types for the booking core

PURPOSE:
  All error types in one place. Callers branch with errors.Is on the
  sentinels and errors.As on the structured types for details.

ERROR CATEGORIES:
  1. ValidationError        - malformed or out-of-range input, rejected before any write
  2. InvalidTransitionError - illegal room status change
  3. NotFoundError          - referenced entity absent (or soft-deleted)
  4. ConsistencyError       - reconciliation discrepancy, advisory only
  5. TransientStorageError  - contention or backend unavailability, retried

PROPAGATION:
  Validation and transition errors surface immediately and are never retried.
  Transient errors are retried by the Numberer and then degraded.
  Consistency errors are returned inside a ReconciliationReport, never thrown.
*/
package booking

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotFound          = errors.New("not found")
	ErrConsistency       = errors.New("consistency discrepancy")
	ErrTransientStorage  = errors.New("transient storage failure")

	// ErrFallbackIdentifier is returned by Parse for degraded, non-sequential ids.
	ErrFallbackIdentifier = errors.New("identifier is a non-sequential fallback")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the field and the rule that rejected the input.
type ValidationError struct {
	Field   string
	Rule    string
	Message string
	Err     error // optional cause, e.g. ErrFallbackIdentifier
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed (%s): %s", e.Rule, e.Message)
	}
	return fmt.Sprintf("validation failed on %s (%s): %s", e.Field, e.Rule, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field, rule, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError names the illegal (from, to) pair.
type InvalidTransitionError struct {
	RoomID string
	From   RoomStatus
	To     RoomStatus
}

func (e *InvalidTransitionError) Error() string {
	if e.RoomID == "" {
		return fmt.Sprintf("invalid room transition: %s -> %s", e.From, e.To)
	}
	return fmt.Sprintf("invalid room transition for %s: %s -> %s", e.RoomID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// NotFoundError identifies the missing document.
type NotFoundError struct {
	Kind string // "reservation", "room", "payment"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConsistencyError is one reconciliation discrepancy. It is reported, not raised.
type ConsistencyError struct {
	Code    string // e.g. "underpayment", "overpayment", "double_payment"
	Message string
}

func (e ConsistencyError) Error() string { return e.Message }

func (e ConsistencyError) Unwrap() error { return ErrConsistency }

// TransientStorageError wraps a backend failure that may succeed on retry.
type TransientStorageError struct {
	Op  string
	Err error
}

func (e *TransientStorageError) Error() string {
	return fmt.Sprintf("transient storage failure during %s: %v", e.Op, e.Err)
}

func (e *TransientStorageError) Is(target error) bool { return target == ErrTransientStorage }

func (e *TransientStorageError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientStorage)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidTransition)
}

// IsNotFound returns true if the error indicates a missing document.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
