package service

import (
	"context"

	"github.com/phrazzld/companion-api/internal/domain"
)

// CareRequestGateway is the dispatch-system contract the companion
// services consume. Implemented by the station HTTP client.
type CareRequestGateway interface {
	// GetCareRequest fetches the current snapshot of a care request.
	// Returns domain.ErrCareRequestNotFound if the id is unknown.
	GetCareRequest(ctx context.Context, careRequestID int64) (*domain.CareRequestSnapshot, error)

	// HasIdentificationImage reports whether the patient has an
	// identification image on file.
	HasIdentificationImage(ctx context.Context, careRequestID int64) (bool, error)

	// ListInsurances fetches the patient's insurance records reduced
	// to slot priority and card image presence.
	ListInsurances(ctx context.Context, careRequestID int64) ([]domain.InsuranceRecord, error)

	// HasDefaultPharmacy reports whether the patient has a default
	// pharmacy on file.
	HasDefaultPharmacy(ctx context.Context, careRequestID int64) (bool, error)

	// SetDefaultPharmacy records the patient's default pharmacy.
	SetDefaultPharmacy(ctx context.Context, careRequestID int64, clinicalProviderID string) error

	// SetPrimaryCareProvider records the patient's chosen primary care
	// provider.
	SetPrimaryCareProvider(ctx context.Context, careRequestID int64, clinicalProviderID string) error

	// HasMedicationHistoryConsent reports whether the patient has
	// granted medication history authority.
	HasMedicationHistoryConsent(ctx context.Context, careRequestID int64) (bool, error)

	// GrantMedicationHistoryConsent records the patient's medication
	// history authority consent.
	GrantMedicationHistoryConsent(ctx context.Context, careRequestID int64) error

	// ListConsentDefinitions fetches the consent definitions
	// applicable to a care request.
	ListConsentDefinitions(ctx context.Context, careRequestID int64) ([]domain.ConsentDefinition, error)

	// ListNotes fetches the timeline notes of the given kind.
	ListNotes(ctx context.Context, careRequestID int64, kind string) ([]domain.CareRequestNote, error)

	// CreateNote adds a timeline note to a care request.
	CreateNote(ctx context.Context, careRequestID int64, note domain.CareRequestNote) error

	// UpdateNote replaces the body and metadata of an existing note.
	UpdateNote(ctx context.Context, careRequestID int64, note domain.CareRequestNote) error
}

// SmsSender executes an SMS flow towards a phone number.
// Implemented by the Twilio Studio Flow client.
type SmsSender interface {
	ExecuteFlow(ctx context.Context, flowSID, toNumber string, params map[string]string) error
}

// ReminderScheduler is the control plane for the running-late reminder
// job. Implemented by the jobs package.
type ReminderScheduler interface {
	// Enqueue schedules the reminder for a care request based on its
	// latest arrival-estimate window. No-ops (logged) when the window
	// is absent, already too close, or the patient cannot be contacted.
	Enqueue(ctx context.Context, careRequestID int64) error

	// Cancel removes the scheduled reminder. An absent job is not an
	// error.
	Cancel(ctx context.Context, careRequestID int64) error

	// Reschedule cancels and, if the feature gate remains enabled,
	// enqueues again with a freshly computed delay.
	Reschedule(ctx context.Context, careRequestID int64) error
}
