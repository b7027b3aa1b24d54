package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the companion services.
const (
	// TypeTaskStatusChanged fires whenever a task's active status
	// changes. Payload: TaskStatusChangedPayload.
	TypeTaskStatusChanged = "task_status_changed"

	// TypeLinkCreated fires once when a companion link is first
	// created. Payload: LinkCreatedPayload.
	TypeLinkCreated = "link_created"

	// TypeSmsSent fires after an SMS flow execution succeeds.
	// Payload: SmsSentPayload.
	TypeSmsSent = "sms_sent"

	// TypeTaskCompletionOnArrival fires when the care team arrives on
	// scene, recording how much of the checklist was finished.
	// Payload: TaskCompletionOnArrivalPayload.
	TypeTaskCompletionOnArrival = "task_completion_percentage_on_arrival"
)

// TaskStatusChangedPayload carries the details of a task status
// transition.
type TaskStatusChangedPayload struct {
	LinkID        uuid.UUID `json:"link_id"`
	CareRequestID int64     `json:"care_request_id"`
	TaskType      string    `json:"task_type"`
	Status        string    `json:"status"`
}

// LinkCreatedPayload carries the details of a new companion link.
type LinkCreatedPayload struct {
	LinkID        uuid.UUID `json:"link_id"`
	CareRequestID int64     `json:"care_request_id"`
}

// SmsSentPayload records which trigger caused an SMS flow execution.
type SmsSentPayload struct {
	CareRequestID int64  `json:"care_request_id"`
	Trigger       string `json:"trigger"`
}

// TaskCompletionOnArrivalPayload records checklist progress at the
// moment the care team arrived. Available is false when the task data
// could not be loaded; Completed and Total are zero in that case.
type TaskCompletionOnArrivalPayload struct {
	CareRequestID int64 `json:"care_request_id"`
	Completed     int   `json:"completed"`
	Total         int   `json:"total"`
	Available     bool  `json:"available"`
}

// CompanionEvent represents something that happened in the companion
// flow. It carries the event-specific data as JSON so handlers do not
// depend on the emitting service's types.
type CompanionEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type indicates which companion event occurred
	Type string `json:"type"`

	// Payload contains the event-specific data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *CompanionEvent) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewCompanionEvent creates a new CompanionEvent with the specified type and payload.
func NewCompanionEvent(eventType string, payload interface{}) (*CompanionEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &CompanionEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payloadBytes,
		CreatedAt: time.Now(),
	}, nil
}

// EventHandler defines an interface for components that can handle events.
// Handlers are responsible for processing events and taking appropriate actions.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *CompanionEvent) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *CompanionEvent) error
}
