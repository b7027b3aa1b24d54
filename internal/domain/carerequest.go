package domain

import "time"

// RequestStatus is the dispatch system's status label for a care
// request, as delivered on webhooks and snapshots.
type RequestStatus string

// Known care request statuses.
const (
	RequestStatusRequested RequestStatus = "requested"
	RequestStatusScheduled RequestStatus = "scheduled"
	RequestStatusAccepted  RequestStatus = "accepted"
	RequestStatusCommitted RequestStatus = "committed"
	RequestStatusOnRoute   RequestStatus = "on_route"
	RequestStatusOnScene   RequestStatus = "on_scene"
	RequestStatusComplete  RequestStatus = "complete"
	RequestStatusArchived  RequestStatus = "archived"
)

// IsPreArrival reports whether the care request is still waiting on
// the care team. Running-late reminders only schedule and fire while
// the request is in one of these states.
func (s RequestStatus) IsPreArrival() bool {
	switch s {
	case RequestStatusRequested, RequestStatusAccepted,
		RequestStatusScheduled, RequestStatusCommitted:
		return true
	}
	return false
}

// EtaRange is one arrival-estimate window attached to a care request.
// A care request accumulates windows over time; the most recently
// created one is authoritative.
type EtaRange struct {
	ID        int64     `json:"id"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SnapshotPatient is the subset of patient fields consumed from the
// dispatch snapshot.
type SnapshotPatient struct {
	ID               int64  `json:"id"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	MobileNumber     string `json:"mobile_number"`
	DateOfBirth      string `json:"dob"`
	VoicemailConsent bool   `json:"voicemail_consent"`
}

// SnapshotProvider is a care team member attached to the request.
type SnapshotProvider struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	Position     string `json:"position"`
	ImageURL     string `json:"provider_image_tiny_url"`
	Credentials  string `json:"provider_profile_credentials"`
	Licenses     string `json:"provider_profile_licenses"`
}

// CareRequestSnapshot is the point-in-time view of a care request as
// returned by the dispatch system. Only the fields the companion flow
// consumes are decoded.
type CareRequestSnapshot struct {
	ID             int64              `json:"id"`
	Status         RequestStatus      `json:"request_status"`
	ChiefComplaint string             `json:"chief_complaint"`
	Patient        SnapshotPatient    `json:"patient"`
	Providers      []SnapshotProvider `json:"providers"`
	EtaRanges      []EtaRange         `json:"eta_ranges"`
}

// LatestEtaRange returns the most recently created arrival-estimate
// window, or nil when the care request has none.
func (cr *CareRequestSnapshot) LatestEtaRange() *EtaRange {
	if len(cr.EtaRanges) == 0 {
		return nil
	}
	latest := &cr.EtaRanges[0]
	for i := range cr.EtaRanges[1:] {
		candidate := &cr.EtaRanges[i+1]
		if candidate.CreatedAt.After(latest.CreatedAt) {
			latest = candidate
		}
	}
	return latest
}
