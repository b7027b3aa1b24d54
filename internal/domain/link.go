package domain

import (
	"time"

	"github.com/google/uuid"
)

// CompanionLink identifies one companion session for one care request.
// At most one link exists per care request; links are created on the
// first onboarding-eligible webhook and never deleted.
type CompanionLink struct {
	ID            uuid.UUID `json:"id"`
	CareRequestID int64     `json:"care_request_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// InvalidAuthCount tracks consecutive failed authentication
	// attempts against this link. LastInvalidAuth records when the most
	// recent one happened.
	InvalidAuthCount int        `json:"invalid_auth_count"`
	LastInvalidAuth  *time.Time `json:"last_invalid_auth,omitempty"`

	// IsBlocked is sticky: once a link is blocked it stays blocked.
	IsBlocked bool `json:"is_blocked"`

	// Each notification fires at most once per link.
	CreatedNotificationSent bool `json:"created_notification_sent"`
	OnRouteNotificationSent bool `json:"on_route_notification_sent"`
}

// NewCompanionLink creates a new CompanionLink for the given care
// request. Returns an error if validation fails.
func NewCompanionLink(careRequestID int64) (*CompanionLink, error) {
	link := &CompanionLink{
		ID:            uuid.New(),
		CareRequestID: careRequestID,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}

	if err := link.Validate(); err != nil {
		return nil, err
	}

	return link, nil
}

// Validate checks if the CompanionLink has valid data.
func (l *CompanionLink) Validate() error {
	if l.ID == uuid.Nil {
		return ErrValidation
	}
	if l.CareRequestID <= 0 {
		return ErrInvalidCareRequestID
	}
	return nil
}
