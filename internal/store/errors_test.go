package store

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsNotFoundError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "generic error",
			err:      errors.New("some error"),
			expected: false,
		},
		{
			name:     "ErrNotFound",
			err:      ErrNotFound,
			expected: true,
		},
		{
			name:     "wrapped ErrNotFound",
			err:      fmt.Errorf("failed to do something: %w", ErrNotFound),
			expected: true,
		},
		{
			name:     "ErrLinkNotFound",
			err:      ErrLinkNotFound,
			expected: true,
		},
		{
			name:     "ErrTaskNotFound wrapped",
			err:      fmt.Errorf("lookup: %w", ErrTaskNotFound),
			expected: true,
		},
		{
			name:     "ErrLinkExists is not a not-found error",
			err:      ErrLinkExists,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFoundError(tt.err); got != tt.expected {
				t.Errorf("IsNotFoundError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestIsDuplicateError(t *testing.T) {
	if !IsDuplicateError(ErrLinkExists) {
		t.Error("Expected ErrLinkExists to be a duplicate error")
	}
	if !IsDuplicateError(fmt.Errorf("create: %w", ErrJobExists)) {
		t.Error("Expected wrapped ErrJobExists to be a duplicate error")
	}
	if IsDuplicateError(ErrLinkNotFound) {
		t.Error("Expected ErrLinkNotFound not to be a duplicate error")
	}
}

func TestStoreError(t *testing.T) {
	inner := errors.New("connection reset")
	err := NewStoreError("link", "create", "insert failed", inner)

	if !errors.Is(err, inner) {
		t.Error("Expected StoreError to unwrap to the inner error")
	}
	expected := "create operation on link failed: insert failed: connection reset"
	if err.Error() != expected {
		t.Errorf("Expected %q, got %q", expected, err.Error())
	}

	bare := NewStoreError("task", "update", "no rows", nil)
	if bare.Error() != "update operation on task failed: no rows" {
		t.Errorf("Unexpected message: %q", bare.Error())
	}
}
