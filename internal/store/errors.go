package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	// This is a generic version of the entity-specific not found errors
	// (e.g., ErrLinkNotFound, ErrTaskNotFound).
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity (e.g., a second link for the same care request).
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrUpdateFailed is returned when an update operation fails, for example
	// because the entity does not exist or the update violates constraints.
	ErrUpdateFailed = errors.New("update failed")

	// ErrTransactionFailed is returned when a database transaction fails
	// to commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrLockUnavailable is returned when a distributed lock could not be
	// acquired within the bounded wait. Callers may retry the whole
	// operation.
	ErrLockUnavailable = errors.New("lock unavailable")

	// Entity-specific "not found" errors

	// ErrLinkNotFound indicates that the requested companion link does not exist.
	ErrLinkNotFound = fmt.Errorf("%w: companion link", ErrNotFound)

	// ErrTaskNotFound indicates that the requested companion task does not exist.
	ErrTaskNotFound = fmt.Errorf("%w: companion task", ErrNotFound)

	// ErrJobNotFound indicates that the requested scheduled job does not exist.
	ErrJobNotFound = fmt.Errorf("%w: scheduled job", ErrNotFound)

	// Entity-specific "duplicate" errors

	// ErrLinkExists indicates that a companion link already exists for the
	// given care request. Callers treating link creation as idempotent
	// should re-read the existing link on this error.
	ErrLinkExists = fmt.Errorf("%w: companion link for care request", ErrDuplicate)

	// ErrJobExists indicates that a scheduled job with the given id is
	// already enqueued.
	ErrJobExists = fmt.Errorf("%w: scheduled job", ErrDuplicate)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
// This includes the generic ErrNotFound and all entity-specific not found errors.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is any kind of "duplicate" error.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// StoreError is a custom error type for store-specific errors with additional context.
type StoreError struct {
	Entity    string // The entity type (e.g., "link", "task")
	Operation string // The operation that failed (e.g., "create", "update")
	Message   string // Error message
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf(
			"%s operation on %s failed: %s: %v",
			e.Operation,
			e.Entity,
			e.Message,
			e.Err,
		)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given entity, operation, message, and wrapped error.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
