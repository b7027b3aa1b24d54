package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/companion-api/internal/domain"
)

// DashboardWebhookRequest is the current webhook payload shape.
type DashboardWebhookRequest struct {
	CareRequestID int64  `json:"care_request_id" validate:"required,gt=0"`
	RequestStatus string `json:"request_status"  validate:"required"`
}

// legacyWebhookEnvelope is the deprecated webhook shape still sent by
// older dashboard versions: the care request arrives as a JSON string.
type legacyWebhookEnvelope struct {
	CareRequest string `json:"care_request"`
}

// legacyWebhookCareRequest is the inner document of the legacy shape.
type legacyWebhookCareRequest struct {
	ExternalID    int64  `json:"external_id"`
	RequestStatus string `json:"request_status"`
}

// AuthRequest is the link identity challenge payload.
type AuthRequest struct {
	DateOfBirth string `json:"dob" validate:"required"`
}

// AuthResponse returns the bearer token for a successfully
// authenticated link.
type AuthResponse struct {
	Token string `json:"token"`
}

// TaskStatusResponse is one entry of a task's status history.
type TaskStatusResponse struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskResponse describes one checklist item.
type TaskResponse struct {
	ID           uuid.UUID            `json:"id"`
	Type         string               `json:"type"`
	ActiveStatus string               `json:"active_status"`
	Statuses     []TaskStatusResponse `json:"statuses"`
	Metadata     interface{}          `json:"metadata,omitempty"`
}

// ProviderResponse describes one care team member.
type ProviderResponse struct {
	Name     string `json:"name"`
	Position string `json:"position"`
	ImageURL string `json:"image_url,omitempty"`
}

// CompanionInfoResponse is the full companion experience payload.
type CompanionInfoResponse struct {
	LinkID         uuid.UUID          `json:"link_id"`
	CareRequestID  int64              `json:"care_request_id"`
	RequestStatus  string             `json:"request_status"`
	ChiefComplaint string             `json:"chief_complaint,omitempty"`
	Providers      []ProviderResponse `json:"providers"`
	Tasks          []TaskResponse     `json:"tasks"`
}

// LinkStatusResponse answers the lightweight status probe.
type LinkStatusResponse struct {
	RequestStatus string `json:"request_status"`
}

// EtaResponse is the current arrival-estimate window.
type EtaResponse struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// SocialHistoryAnswerRequest records one primary care provider
// funnel answer.
type SocialHistoryAnswerRequest struct {
	QuestionTag string `json:"question_tag" validate:"required"`
	Answer      *bool  `json:"answer"       validate:"required"`
}

// ClinicalProviderRequest names a clinical provider chosen by the
// patient (pharmacy or primary care provider).
type ClinicalProviderRequest struct {
	ClinicalProviderID string `json:"clinical_provider_id" validate:"required"`
}

func taskToResponse(task *domain.Task) TaskResponse {
	statuses := make([]TaskStatusResponse, 0, len(task.Statuses))
	for _, s := range task.Statuses {
		statuses = append(statuses, TaskStatusResponse{
			Name:      string(s.Name),
			CreatedAt: s.CreatedAt,
		})
	}

	return TaskResponse{
		ID:           task.ID,
		Type:         string(task.Type),
		ActiveStatus: string(task.ActiveStatus().Name),
		Statuses:     statuses,
		Metadata:     task.Metadata,
	}
}
