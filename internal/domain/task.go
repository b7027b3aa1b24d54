package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskType identifies one kind of companion checklist item.
type TaskType string

// Persisted task type values. Every link carries exactly one task per type.
const (
	TaskTypeIdentificationImage TaskType = "IDENTIFICATION_IMAGE"
	TaskTypeInsuranceCardImages TaskType = "INSURANCE_CARD_IMAGES"
	TaskTypeDefaultPharmacy     TaskType = "DEFAULT_PHARMACY"
	TaskTypePrimaryCareProvider TaskType = "PRIMARY_CARE_PROVIDER"
	TaskTypeConsents            TaskType = "CONSENTS"
	TaskTypeMedicationConsent   TaskType = "CONSENT_MEDICATION_HISTORY_AUTHORITY"
)

// AllTaskTypes lists every task type in seeding order.
var AllTaskTypes = []TaskType{
	TaskTypeIdentificationImage,
	TaskTypeInsuranceCardImages,
	TaskTypeDefaultPharmacy,
	TaskTypePrimaryCareProvider,
	TaskTypeMedicationConsent,
	TaskTypeConsents,
}

// IsValidTaskType reports whether t is one of the known task types.
func IsValidTaskType(t TaskType) bool {
	switch t {
	case TaskTypeIdentificationImage, TaskTypeInsuranceCardImages,
		TaskTypeDefaultPharmacy, TaskTypePrimaryCareProvider,
		TaskTypeConsents, TaskTypeMedicationConsent:
		return true
	default:
		return false
	}
}

// TaskStatusName represents the completion state of a companion task.
type TaskStatusName string

// Possible task status values.
const (
	TaskStatusNotStarted TaskStatusName = "NOT_STARTED"
	TaskStatusStarted    TaskStatusName = "STARTED"
	TaskStatusCompleted  TaskStatusName = "COMPLETED"
)

// IsValidTaskStatus reports whether s is one of the known status names.
func IsValidTaskStatus(s TaskStatusName) bool {
	switch s {
	case TaskStatusNotStarted, TaskStatusStarted, TaskStatusCompleted:
		return true
	default:
		return false
	}
}

// TaskStatus is one entry in a task's append-only status history.
type TaskStatus struct {
	ID        int64          `json:"id"`
	TaskID    uuid.UUID      `json:"task_id"`
	Name      TaskStatusName `json:"name"`
	CreatedAt time.Time      `json:"created_at"`
}

// Task is one companion checklist item tracked per link. Metadata shape
// depends on Type; see the TaskMetadata variants.
type Task struct {
	ID        uuid.UUID    `json:"id"`
	LinkID    uuid.UUID    `json:"link_id"`
	Type      TaskType     `json:"type"`
	Metadata  TaskMetadata `json:"metadata,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`

	// Statuses is the append-only status history, oldest first.
	Statuses []TaskStatus `json:"statuses"`
}

// ActiveStatus returns the task's current status entry: the one with
// the latest CreatedAt, ties broken by highest ID so the result is
// deterministic. Returns NOT_STARTED when the history is empty, which
// only happens for tasks that have not been persisted yet.
func (t *Task) ActiveStatus() TaskStatus {
	if len(t.Statuses) == 0 {
		return TaskStatus{TaskID: t.ID, Name: TaskStatusNotStarted}
	}

	active := t.Statuses[0]
	for _, s := range t.Statuses[1:] {
		if s.CreatedAt.After(active.CreatedAt) ||
			(s.CreatedAt.Equal(active.CreatedAt) && s.ID > active.ID) {
			active = s
		}
	}
	return active
}

// IsCompleted reports whether the task's active status is COMPLETED.
func (t *Task) IsCompleted() bool {
	return t.ActiveStatus().Name == TaskStatusCompleted
}

// NewTask creates a new Task of the given type for the given link.
func NewTask(linkID uuid.UUID, taskType TaskType, metadata TaskMetadata) (*Task, error) {
	if !IsValidTaskType(taskType) {
		return nil, ErrInvalidTaskType
	}

	return &Task{
		ID:        uuid.New(),
		LinkID:    linkID,
		Type:      taskType,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}, nil
}
