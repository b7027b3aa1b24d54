package domain

import (
	"fmt"
	"time"
)

// JobStatus tracks a scheduled job through its lifecycle.
type JobStatus string

// Scheduled job lifecycle states.
const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// RunningLateQueue is the queue name for running-late reminder jobs.
const RunningLateQueue = "running-late-sms"

// ReminderJobID builds the deterministic job id for a care request's
// reminder. Re-enqueue after cancel reuses the same id, so at most one
// live job per care request can exist.
func ReminderJobID(careRequestID int64) string {
	return fmt.Sprintf("%s:%d", RunningLateQueue, careRequestID)
}

// ScheduledJob is one delayed-queue entry. Jobs are keyed by a
// deterministic id and carry the care request id as payload.
type ScheduledJob struct {
	ID            string
	Queue         string
	CareRequestID int64
	RunAt         time.Time
	Status        JobStatus
	Attempts      int
	MaxAttempts   int
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewReminderJob creates a pending running-late reminder job that
// fires after the given delay.
func NewReminderJob(careRequestID int64, delay time.Duration, maxAttempts int) *ScheduledJob {
	now := time.Now().UTC()
	return &ScheduledJob{
		ID:            ReminderJobID(careRequestID),
		Queue:         RunningLateQueue,
		CareRequestID: careRequestID,
		RunAt:         now.Add(delay),
		Status:        JobStatusPending,
		MaxAttempts:   maxAttempts,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
