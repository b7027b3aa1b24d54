package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidCareRequestID is returned when a care request ID is
	// zero or negative.
	ErrInvalidCareRequestID = errors.New("invalid care request ID")

	// ErrInvalidTaskType is returned when a task type is not one of the
	// known companion task types.
	ErrInvalidTaskType = errors.New("invalid companion task type")

	// ErrInvalidTaskStatus is returned when a status name is not one of
	// NOT_STARTED, STARTED, or COMPLETED.
	ErrInvalidTaskStatus = errors.New("invalid companion task status")

	// ErrMetadataMismatch is returned when persisted task metadata does
	// not match the shape expected for the task's type.
	ErrMetadataMismatch = errors.New("task metadata does not match expected format")

	// ErrCareRequestNotFound is returned when the dispatch system has
	// no care request with the given id.
	ErrCareRequestNotFound = errors.New("care request not found")
)

// ValidationError describes a validation failure for a named field.
// It wraps a base error so callers can match with errors.Is.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// Unwrap returns the wrapped base error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string, baseErr error) error {
	return &ValidationError{Field: field, Message: message, Err: baseErr}
}
