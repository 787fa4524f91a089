package alert

import (
	"errors"
	"fmt"
)

// Store error types for categorizing alert store failures.
var (
	// ErrNotFound indicates the requested alert was not found.
	ErrNotFound = errors.New("alert: not found")

	// ErrValidation indicates invalid input fields.
	ErrValidation = errors.New("alert: validation failed")

	// ErrConflict indicates a duplicate open alert for a fingerprint.
	ErrConflict = errors.New("alert: fingerprint conflict")

	// ErrInvalidTransition indicates a disallowed status change.
	ErrInvalidTransition = errors.New("alert: invalid status transition")
)

// StoreError wraps store errors with the failing operation.
type StoreError struct {
	Op  string // Operation that failed (e.g., "Create", "Update")
	ID  string // Alert id or fingerprint involved, if applicable
	Err error  // Underlying error
}

// Error returns the error message.
func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("alert.%s(%s): %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("alert.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflict checks if the error is a conflict error.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsInvalidTransition checks if the error is an invalid transition error.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

func wrapErr(op, id string, err error) error {
	return &StoreError{Op: op, ID: id, Err: err}
}
