// Package shared contains the error taxonomy shared by every domain package.
// This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds. Match them with errors.Is().
var (
	// ErrInvalidArgument marks input that is rejected synchronously and never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is an idempotent success for deletions and a 404 elsewhere.
	ErrNotFound = errors.New("entity not found")

	// ErrTransientStore marks store failures worth retrying with backoff.
	ErrTransientStore = errors.New("transient store error")

	// ErrPartialFailure is surfaced in reports and results, never swallowed.
	ErrPartialFailure = errors.New("partial failure")

	// ErrConflict means a conditional update lost the race.
	ErrConflict = errors.New("conflict")

	// ErrAlreadyClaimed means a once-per-day reward was already granted today.
	ErrAlreadyClaimed = errors.New("already claimed")

	// ErrSweepInProgress means another process holds the graduation sweep lock.
	ErrSweepInProgress = errors.New("graduation sweep already in progress")

	// ErrUnauthorized and ErrForbidden are returned by the session layer.
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "progression", "account", "market"
	Op      string // Operation that failed, e.g., "ApplyXPGain"
	Kind    error  // Base error kind for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching against both the kind and the cause.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// InvalidArgument is shorthand for the most common validation failure.
func InvalidArgument(domain, op, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidArgument checks if the error is a validation error.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientStore)
}

// IsPartialFailure checks if the error reports a partially applied operation.
func IsPartialFailure(err error) bool {
	return errors.Is(err, ErrPartialFailure)
}
