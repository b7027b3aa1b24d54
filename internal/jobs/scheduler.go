package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/companion-api/internal/domain"
	"github.com/phrazzld/companion-api/internal/platform/flags"
	"github.com/phrazzld/companion-api/internal/platform/logger"
	"github.com/phrazzld/companion-api/internal/store"
)

// reminderLeadTime is how far before the end of the arrival-estimate
// window the running-late reminder fires.
const reminderLeadTime = 15 * time.Minute

// reminderMaxAttempts bounds delivery retries for one reminder job.
const reminderMaxAttempts = 3

// CareRequestReader is the slice of the dispatch system the scheduler
// needs.
type CareRequestReader interface {
	GetCareRequest(ctx context.Context, careRequestID int64) (*domain.CareRequestSnapshot, error)
}

// RunningLateScheduler manages the delayed running-late reminder for
// each care request. At most one reminder job exists per care request,
// keyed by a deterministic job id.
type RunningLateScheduler struct {
	jobStore     store.JobStore
	careRequests CareRequestReader
	flags        flags.Provider
	logger       *slog.Logger
}

// NewRunningLateScheduler creates a new RunningLateScheduler.
func NewRunningLateScheduler(
	jobStore store.JobStore,
	careRequests CareRequestReader,
	flagProvider flags.Provider,
	log *slog.Logger,
) (*RunningLateScheduler, error) {
	if jobStore == nil {
		return nil, errors.New("jobStore cannot be nil")
	}
	if careRequests == nil {
		return nil, errors.New("careRequests cannot be nil")
	}
	if flagProvider == nil {
		return nil, errors.New("flagProvider cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	return &RunningLateScheduler{
		jobStore:     jobStore,
		careRequests: careRequests,
		flags:        flagProvider,
		logger:       log.With(slog.String("component", "running_late_scheduler")),
	}, nil
}

// ComputeDelay returns how long to wait before reminding for the given
// arrival-estimate window, firing reminderLeadTime before the window
// ends. The second return is false when that moment has already
// passed.
func ComputeDelay(window *domain.EtaRange, now time.Time) (time.Duration, bool) {
	delay := window.EndsAt.Add(-reminderLeadTime).Sub(now)
	if delay <= 0 {
		return 0, false
	}
	return delay, true
}

// Enqueue schedules the running-late reminder for a care request.
// Returns domain.ErrCareRequestNotFound when the care request does not
// exist. Missing windows, windows already too close, and patients who
// cannot be contacted make the call a logged no-op.
func (s *RunningLateScheduler) Enqueue(ctx context.Context, careRequestID int64) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	snapshot, err := s.careRequests.GetCareRequest(ctx, careRequestID)
	if err != nil {
		if errors.Is(err, domain.ErrCareRequestNotFound) {
			return fmt.Errorf("enqueue reminder: %w", err)
		}
		return fmt.Errorf("enqueue reminder: load care request %d: %w", careRequestID, err)
	}

	window := snapshot.LatestEtaRange()
	if window == nil {
		log.Debug("no arrival window, skipping reminder",
			slog.Int64("care_request_id", careRequestID))
		return nil
	}
	if snapshot.Patient.ID == 0 {
		log.Debug("no patient on care request, skipping reminder",
			slog.Int64("care_request_id", careRequestID))
		return nil
	}
	if !snapshot.Patient.VoicemailConsent {
		log.Debug("patient has not consented to contact, skipping reminder",
			slog.Int64("care_request_id", careRequestID))
		return nil
	}

	delay, ok := ComputeDelay(window, time.Now().UTC())
	if !ok {
		log.Debug("arrival window too close, skipping reminder",
			slog.Int64("care_request_id", careRequestID),
			slog.Time("window_ends_at", window.EndsAt))
		return nil
	}

	job := domain.NewReminderJob(careRequestID, delay, reminderMaxAttempts)
	if err := s.jobStore.Enqueue(ctx, job); err != nil {
		if errors.Is(err, store.ErrJobExists) {
			log.Debug("reminder currently being delivered, not replaced",
				slog.String("job_id", job.ID))
			return nil
		}
		return fmt.Errorf("enqueue reminder: %w", err)
	}

	log.Info("reminder scheduled",
		slog.String("job_id", job.ID),
		slog.Time("run_at", job.RunAt))
	return nil
}

// Cancel removes the scheduled reminder for a care request. An absent
// job is not an error.
func (s *RunningLateScheduler) Cancel(ctx context.Context, careRequestID int64) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	jobID := domain.ReminderJobID(careRequestID)
	if err := s.jobStore.Delete(ctx, jobID); err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return nil
		}
		return fmt.Errorf("cancel reminder: %w", err)
	}

	log.Info("reminder cancelled", slog.String("job_id", jobID))
	return nil
}

// Reschedule replaces any scheduled reminder with one computed from
// the care request's current arrival window. When the feature gate is
// off the existing reminder is removed and nothing new is scheduled.
func (s *RunningLateScheduler) Reschedule(ctx context.Context, careRequestID int64) error {
	if err := s.Cancel(ctx, careRequestID); err != nil {
		return err
	}
	if !s.flags.GetBool(flags.KeyRunningLateSMS, false) {
		return nil
	}
	return s.Enqueue(ctx, careRequestID)
}
