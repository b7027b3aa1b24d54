package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/phrazzld/companion-api/internal/api/shared"
	"github.com/phrazzld/companion-api/internal/domain"
	"github.com/phrazzld/companion-api/internal/service"
)

// WebhookProcessor is the slice of the webhook service the handler
// consumes.
type WebhookProcessor interface {
	HandleDashboardWebhook(ctx context.Context, careRequestID int64, status domain.RequestStatus) (*service.WebhookResult, error)
	HandleEtaRangeWebhook(ctx context.Context, careRequestID int64, status domain.RequestStatus) (*service.WebhookResult, error)
}

// WebhookHandler handles the dashboard's webhook deliveries.
type WebhookHandler struct {
	webhooks WebhookProcessor
	logger   *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(webhooks WebhookProcessor, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		webhooks: webhooks,
		logger:   logger.With(slog.String("component", "webhook_handler")),
	}
}

// decodeWebhook accepts both webhook payload generations: the current
// flat document and the legacy envelope carrying the care request as a
// JSON string.
func decodeWebhook(r *http.Request) (DashboardWebhookRequest, error) {
	var raw json.RawMessage
	if err := shared.DecodeJSON(r, &raw); err != nil {
		return DashboardWebhookRequest{}, err
	}

	var legacy legacyWebhookEnvelope
	if err := json.Unmarshal(raw, &legacy); err == nil && legacy.CareRequest != "" {
		var inner legacyWebhookCareRequest
		if err := json.Unmarshal([]byte(legacy.CareRequest), &inner); err != nil {
			return DashboardWebhookRequest{}, err
		}
		return DashboardWebhookRequest{
			CareRequestID: inner.ExternalID,
			RequestStatus: inner.RequestStatus,
		}, nil
	}

	var req DashboardWebhookRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return DashboardWebhookRequest{}, err
	}
	return req, nil
}

// HandleDashboardWebhook handles POST /webhook.
func (h *WebhookHandler) HandleDashboardWebhook(w http.ResponseWriter, r *http.Request) {
	req, err := decodeWebhook(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request", err)
		return
	}

	result, err := h.webhooks.HandleDashboardWebhook(r.Context(), req.CareRequestID, domain.RequestStatus(req.RequestStatus))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// HandleEtaRangeWebhook handles POST /webhook/eta-range.
func (h *WebhookHandler) HandleEtaRangeWebhook(w http.ResponseWriter, r *http.Request) {
	var req DashboardWebhookRequest
	if !parseAndValidateRequest(w, r, &req) {
		return
	}

	result, err := h.webhooks.HandleEtaRangeWebhook(r.Context(), req.CareRequestID, domain.RequestStatus(req.RequestStatus))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, result)
}
