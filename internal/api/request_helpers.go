package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/phrazzld/companion-api/internal/api/shared"
	"github.com/phrazzld/companion-api/internal/domain"
)

// HandleAPIError maps an internal error to an HTTP status and writes a
// sanitized error response. An empty userMessage falls back to the safe
// message derived from the error type.
func HandleAPIError(
	w http.ResponseWriter,
	r *http.Request,
	err error,
	userMessage string,
	opts ...shared.ResponseOption,
) {
	status := MapErrorToStatusCode(err)
	if userMessage == "" {
		userMessage = GetSafeErrorMessage(err)
	}
	shared.RespondWithErrorAndLog(w, r, status, userMessage, err, opts...)
}

// getPathUUID extracts a UUID from the URL path parameters.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, domain.NewValidationError(paramName, "is required", domain.ErrValidation)
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, domain.NewValidationError(paramName, "has invalid format", domain.ErrValidation)
	}

	return id, nil
}

// parseAndValidateRequest decodes the request body into req and
// validates it, writing an error response when either step fails.
// Returns true when the request parsed and validated cleanly.
func parseAndValidateRequest(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := shared.DecodeJSON(r, req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return false
	}

	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request", err)
		return false
	}

	return true
}
