package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a point lookup has no match.
var ErrNotFound = errors.New("not found")

// ValidationError is a user-correctable problem with the submitted URL.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ConflictError reports which unique field rejected an insert.
type ConflictError struct {
	Field LinkField
	Err   error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("unique constraint conflict on %s", e.Field)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// CapacityError means the key space could not produce a free key within the retry budget.
type CapacityError struct {
	Attempts int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("no free short key after %d attempts", e.Attempts)
}

// BackendError wraps a persistence or upstream failure.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsCapacity(err error) bool {
	var c *CapacityError
	return errors.As(err, &c)
}
