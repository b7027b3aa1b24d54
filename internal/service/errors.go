package service

import "errors"

// Common service errors - sentinel errors used across service implementations.
// These errors represent common conditions that callers may want to check for with errors.Is().
//
// Error handling principles:
// 1. Service methods return sentinel errors for expected error conditions
// 2. Unexpected errors are wrapped in service-specific error types
// 3. Callers use errors.Is/errors.As to check for specific error conditions
// 4. The API layer maps service errors to appropriate HTTP status codes
var (
	// ErrLinkGone indicates a companion link exists but is past its
	// expiration window. API layer should map this to HTTP 410 Gone,
	// distinct from 404.
	ErrLinkGone = errors.New("companion link has expired")

	// ErrLinkBlocked indicates the link was blocked after too many
	// failed authentication attempts.
	ErrLinkBlocked = errors.New("companion link is blocked")

	// ErrAuthFailed indicates the identity challenge answer did not
	// match the patient on the care request.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrUnsupportedStatus indicates a webhook carried a care request
	// status with no handler. API layer should map this to HTTP 400.
	ErrUnsupportedStatus = errors.New("no handler for given care request status")

	// ErrNoteInvariant indicates more than one companion note exists on
	// the care request timeline. This violates the at-most-one-note
	// invariant and is never auto-recovered.
	ErrNoteInvariant = errors.New("expected to find 0 or 1 companion note")
)
