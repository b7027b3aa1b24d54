package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/companion-api/internal/api/shared"
	"github.com/phrazzld/companion-api/internal/redact"
	"github.com/phrazzld/companion-api/internal/service/auth"
)

// AuthMiddleware provides JWT authentication for link-scoped routes.
type AuthMiddleware struct {
	jwtService auth.JWTService
}

// NewAuthMiddleware creates a new AuthMiddleware with the given dependencies.
func NewAuthMiddleware(jwtService auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
	}
}

// Authenticate validates JWT tokens from the Authorization header and
// adds the link ID to the request context. A token is only accepted
// for the link named in the route: a valid token for one link cannot
// be replayed against another.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization header required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		token := parts[1]

		claims, err := m.jwtService.ValidateToken(r.Context(), token)
		if err != nil {
			switch err {
			case auth.ErrExpiredToken:
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Token expired")
			case auth.ErrInvalidToken:
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
			default:
				slog.Error("failed to validate token", "error", redact.Error(err))
				shared.RespondWithError(
					w,
					r,
					http.StatusInternalServerError,
					"Authentication error",
				)
			}
			return
		}

		if param := chi.URLParam(r, "linkId"); param != "" {
			routeLinkID, parseErr := uuid.Parse(param)
			if parseErr != nil || routeLinkID != claims.LinkID {
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Token does not match link")
				return
			}
		}

		ctx := context.WithValue(r.Context(), shared.LinkIDContextKey, claims.LinkID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetLinkID extracts the authenticated link ID from the request context.
// Returns the link ID and a boolean indicating if it was found.
func GetLinkID(r *http.Request) (uuid.UUID, bool) {
	linkID, ok := r.Context().Value(shared.LinkIDContextKey).(uuid.UUID)
	return linkID, ok
}
