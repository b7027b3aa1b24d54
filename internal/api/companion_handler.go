package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/phrazzld/companion-api/internal/api/shared"
	"github.com/phrazzld/companion-api/internal/domain"
	"github.com/phrazzld/companion-api/internal/service"
	"github.com/phrazzld/companion-api/internal/service/auth"
)

// CompanionOperations is the slice of the companion service the
// patient-facing handler consumes.
type CompanionOperations interface {
	GetCompanionInfo(ctx context.Context, linkID uuid.UUID) (*service.CompanionInfo, error)
	ResolveActiveLink(ctx context.Context, linkID uuid.UUID) (*domain.CompanionLink, *domain.CareRequestSnapshot, error)
	Authenticate(ctx context.Context, linkID uuid.UUID, dateOfBirth string) error
	GetCareTeamEta(ctx context.Context, linkID uuid.UUID) (*service.CareTeamEta, error)
	MarkIdentificationUploaded(ctx context.Context, linkID uuid.UUID) error
	ApplyInsuranceImageUploaded(ctx context.Context, linkID uuid.UUID, priority domain.InsurancePriority) error
	MarkPharmacySet(ctx context.Context, linkID uuid.UUID, clinicalProviderID string) error
	ApplySocialHistoryAnswer(ctx context.Context, linkID uuid.UUID, questionTag string, answer bool) error
	MarkPrimaryCareProviderSet(ctx context.Context, linkID uuid.UUID, clinicalProviderID string) error
	MarkMedicationConsentApplied(ctx context.Context, linkID uuid.UUID) error
	ApplyConsentCompleted(ctx context.Context, linkID uuid.UUID, definitionID int) error
}

// CompanionHandler handles the patient-facing companion endpoints.
type CompanionHandler struct {
	companion  CompanionOperations
	jwtService auth.JWTService
	logger     *slog.Logger
}

// NewCompanionHandler creates a new CompanionHandler.
func NewCompanionHandler(
	companion CompanionOperations,
	jwtService auth.JWTService,
	logger *slog.Logger,
) *CompanionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompanionHandler{
		companion:  companion,
		jwtService: jwtService,
		logger:     logger.With(slog.String("component", "companion_handler")),
	}
}

// GetCompanionInfo handles GET /companion/{linkId}.
func (h *CompanionHandler) GetCompanionInfo(w http.ResponseWriter, r *http.Request) {
	linkID, err := getPathUUID(r, "linkId")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	info, err := h.companion.GetCompanionInfo(r.Context(), linkID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, companionInfoToResponse(info))
}

// GetLinkStatus handles GET /companion/{linkId}/status. It answers the
// lightweight probe the web client polls before rendering, so blocked
// and expired links surface here first.
func (h *CompanionHandler) GetLinkStatus(w http.ResponseWriter, r *http.Request) {
	linkID, err := getPathUUID(r, "linkId")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	_, snapshot, err := h.companion.ResolveActiveLink(r.Context(), linkID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, LinkStatusResponse{
		RequestStatus: string(snapshot.Status),
	})
}

// Authenticate handles POST /companion/{linkId}/auth. A matching date
// of birth yields a session token scoped to the link.
func (h *CompanionHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	linkID, err := getPathUUID(r, "linkId")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var req AuthRequest
	if !parseAndValidateRequest(w, r, &req) {
		return
	}

	if err := h.companion.Authenticate(r.Context(), linkID, req.DateOfBirth); err != nil {
		HandleAPIError(w, r, err, "", shared.WithElevatedLogLevel())
		return
	}

	token, err := h.jwtService.GenerateToken(r.Context(), linkID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create session")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, AuthResponse{Token: token})
}

// GetCareTeamEta handles GET /companion/{linkId}/care-team-eta.
func (h *CompanionHandler) GetCareTeamEta(w http.ResponseWriter, r *http.Request) {
	linkID, ok := authorizedLinkID(w, r)
	if !ok {
		return
	}

	eta, err := h.companion.GetCareTeamEta(r.Context(), linkID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, EtaResponse{
		StartsAt: eta.StartsAt,
		EndsAt:   eta.EndsAt,
	})
}

// MarkIdentificationUploaded handles POST /companion/{linkId}/tasks/identification.
func (h *CompanionHandler) MarkIdentificationUploaded(w http.ResponseWriter, r *http.Request) {
	linkID, ok := authorizedLinkID(w, r)
	if !ok {
		return
	}

	if err := h.companion.MarkIdentificationUploaded(r.Context(), linkID); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ApplyInsuranceImageUploaded handles POST /companion/{linkId}/tasks/insurance/{priority}.
func (h *CompanionHandler) ApplyInsuranceImageUploaded(w http.ResponseWriter, r *http.Request) {
	linkID, ok := authorizedLinkID(w, r)
	if !ok {
		return
	}

	priority := domain.InsurancePriority(chi.URLParam(r, "priority"))
	if priority != domain.InsurancePriorityPrimary && priority != domain.InsurancePrioritySecondary {
		HandleAPIError(w, r,
			domain.NewValidationError("priority", "must be 1 or 2", domain.ErrValidation), "")
		return
	}

	if err := h.companion.ApplyInsuranceImageUploaded(r.Context(), linkID, priority); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkPharmacySet handles POST /companion/{linkId}/tasks/pharmacy.
func (h *CompanionHandler) MarkPharmacySet(w http.ResponseWriter, r *http.Request) {
	linkID, ok := authorizedLinkID(w, r)
	if !ok {
		return
	}

	var req ClinicalProviderRequest
	if !parseAndValidateRequest(w, r, &req) {
		return
	}

	if err := h.companion.MarkPharmacySet(r.Context(), linkID, req.ClinicalProviderID); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ApplySocialHistoryAnswer handles POST /companion/{linkId}/tasks/pcp/answer.
func (h *CompanionHandler) ApplySocialHistoryAnswer(w http.ResponseWriter, r *http.Request) {
	linkID, ok := authorizedLinkID(w, r)
	if !ok {
		return
	}

	var req SocialHistoryAnswerRequest
	if !parseAndValidateRequest(w, r, &req) {
		return
	}

	if err := h.companion.ApplySocialHistoryAnswer(r.Context(), linkID, req.QuestionTag, *req.Answer); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkPrimaryCareProviderSet handles POST /companion/{linkId}/tasks/pcp/provider.
func (h *CompanionHandler) MarkPrimaryCareProviderSet(w http.ResponseWriter, r *http.Request) {
	linkID, ok := authorizedLinkID(w, r)
	if !ok {
		return
	}

	var req ClinicalProviderRequest
	if !parseAndValidateRequest(w, r, &req) {
		return
	}

	if err := h.companion.MarkPrimaryCareProviderSet(r.Context(), linkID, req.ClinicalProviderID); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkMedicationConsentApplied handles POST /companion/{linkId}/tasks/medication-consent.
func (h *CompanionHandler) MarkMedicationConsentApplied(w http.ResponseWriter, r *http.Request) {
	linkID, ok := authorizedLinkID(w, r)
	if !ok {
		return
	}

	if err := h.companion.MarkMedicationConsentApplied(r.Context(), linkID); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ApplyConsentCompleted handles POST /companion/{linkId}/tasks/consents/{definitionId}.
func (h *CompanionHandler) ApplyConsentCompleted(w http.ResponseWriter, r *http.Request) {
	linkID, ok := authorizedLinkID(w, r)
	if !ok {
		return
	}

	definitionID, err := strconv.Atoi(chi.URLParam(r, "definitionId"))
	if err != nil || definitionID <= 0 {
		HandleAPIError(w, r,
			domain.NewValidationError("definitionId", "must be a positive integer", domain.ErrValidation), "")
		return
	}

	if err := h.companion.ApplyConsentCompleted(r.Context(), linkID, definitionID); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// authorizedLinkID returns the link ID the auth middleware bound to the
// request. Requests reaching a protected route without one get a 401.
func authorizedLinkID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	linkID, ok := r.Context().Value(shared.LinkIDContextKey).(uuid.UUID)
	if !ok || linkID == uuid.Nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return uuid.Nil, false
	}
	return linkID, true
}

func companionInfoToResponse(info *service.CompanionInfo) CompanionInfoResponse {
	providers := make([]ProviderResponse, 0, len(info.Providers))
	for _, p := range info.Providers {
		providers = append(providers, ProviderResponse{
			Name:     p.FirstName,
			Position: p.Position,
			ImageURL: p.ImageURL,
		})
	}

	tasks := make([]TaskResponse, 0, len(info.Tasks))
	for _, task := range info.Tasks {
		tasks = append(tasks, taskToResponse(task))
	}

	return CompanionInfoResponse{
		LinkID:         info.LinkID,
		CareRequestID:  info.CareRequestID,
		RequestStatus:  string(info.RequestStatus),
		ChiefComplaint: info.ChiefComplaint,
		Providers:      providers,
		Tasks:          tasks,
	}
}
