package auth

import (
	"context"

	"github.com/google/uuid"
)

// JWTService defines operations for managing companion session tokens.
// A session token is issued after the patient answers the link's
// identity challenge and authorizes subsequent task operations on that
// link only.
type JWTService interface {
	// GenerateToken creates a signed session token bound to the link.
	// Returns the token string or an error if token generation fails.
	GenerateToken(ctx context.Context, linkID uuid.UUID) (string, error)

	// ValidateToken validates the provided token string and extracts the claims.
	// Returns the claims if the token is valid, or an error if validation
	// fails (expired, invalid signature, etc.).
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims represents the validated contents of a companion session token.
type Claims struct {
	// LinkID is the companion link the token was issued for.
	LinkID uuid.UUID `json:"lid"`
}
