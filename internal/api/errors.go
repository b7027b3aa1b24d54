package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/companion-api/internal/domain"
	"github.com/phrazzld/companion-api/internal/service"
	"github.com/phrazzld/companion-api/internal/service/auth"
	"github.com/phrazzld/companion-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, service.ErrAuthFailed):
		return http.StatusUnauthorized

	// Authorization errors
	case errors.Is(err, service.ErrLinkBlocked):
		return http.StatusForbidden

	// Expired links
	case errors.Is(err, service.ErrLinkGone):
		return http.StatusGone

	// Not found errors
	case errors.Is(err, domain.ErrCareRequestNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Bad request errors
	case errors.Is(err, service.ErrUnsupportedStatus),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidCareRequestID),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Webhook lock contention: the sender should redeliver
	case errors.Is(err, store.ErrLockUnavailable):
		return http.StatusServiceUnavailable

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrMissingToken):
		return "Invalid token"

	case errors.Is(err, service.ErrAuthFailed):
		return "Authentication failed"

	case errors.Is(err, service.ErrLinkBlocked):
		return "This link has been blocked"

	case errors.Is(err, service.ErrLinkGone):
		return "This link has expired"

	case errors.Is(err, store.ErrLinkNotFound):
		return "Link not found"

	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, domain.ErrCareRequestNotFound):
		return "Care request not found"

	case errors.Is(err, store.ErrNotFound):
		return "Not found"

	case errors.Is(err, service.ErrUnsupportedStatus):
		return "No handler for given care request status"

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidCareRequestID),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request data"

	case errors.Is(err, store.ErrLockUnavailable):
		return "Care request is busy, retry shortly"

	default:
		return "An unexpected error occurred"
	}
}
