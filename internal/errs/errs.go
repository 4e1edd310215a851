// Package errs defines the error taxonomy shared by the pipeline and the
// source store. The retry policy in internal/pipeline keys off Retryable.
package errs

import (
	"errors"
	"fmt"
)

// ValidationError reports bad caller input. Never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// TransientError reports a timeout or transport failure that may succeed on a
// later attempt with identical input.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// NotFoundError reports a missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// DuplicateError reports a strict-insert collision with an existing record.
// The default batch add classifies duplicates per item instead of failing.
type DuplicateError struct {
	URL        string
	ExistingID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate source %s (existing id %s)", e.URL, e.ExistingID)
}

// StorageError reports an underlying persistence failure. Fatal for the
// affected operation, not retried automatically.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func Storage(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// Retryable reports whether err is worth retrying with the same input.
// Only transient conditions qualify.
func Retryable(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}
