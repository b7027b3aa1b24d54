package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/companion-api/internal/domain"
	"github.com/phrazzld/companion-api/internal/metrics"
	"github.com/phrazzld/companion-api/internal/platform/logger"
	"github.com/phrazzld/companion-api/internal/store"
)

// The timeline note left on the care request after a running-late
// reminder goes out.
const (
	runningLateNoteKind = "running_late_sms"
	runningLateNoteBody = "Running late SMS sent to patient."
)

const runningLateMessageType = "running_late"

// CareRequestClient is the slice of the dispatch system the executor
// needs: reading the current snapshot and leaving a timeline note.
type CareRequestClient interface {
	CareRequestReader
	CreateNote(ctx context.Context, careRequestID int64, note domain.CareRequestNote) error
}

// FlowExecutor executes an SMS flow towards a phone number.
type FlowExecutor interface {
	ExecuteFlow(ctx context.Context, flowSID, toNumber string, params map[string]string) error
}

// ReminderExecutor delivers one running-late reminder. The care
// request's state is re-read at execution time: a visit that already
// departed, arrived, or finished makes the job an expected no-op.
type ReminderExecutor struct {
	careRequests CareRequestClient
	sms          FlowExecutor
	linkStore    store.LinkStore
	flowSID      string
	baseURL      string
	logger       *slog.Logger
}

// NewReminderExecutor creates a new ReminderExecutor.
func NewReminderExecutor(
	careRequests CareRequestClient,
	sms FlowExecutor,
	linkStore store.LinkStore,
	flowSID string,
	baseURL string,
	log *slog.Logger,
) (*ReminderExecutor, error) {
	if careRequests == nil {
		return nil, errors.New("careRequests cannot be nil")
	}
	if sms == nil {
		return nil, errors.New("sms cannot be nil")
	}
	if linkStore == nil {
		return nil, errors.New("linkStore cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	return &ReminderExecutor{
		careRequests: careRequests,
		sms:          sms,
		linkStore:    linkStore,
		flowSID:      flowSID,
		baseURL:      baseURL,
		logger:       log.With(slog.String("component", "reminder_executor")),
	}, nil
}

// Execute runs one claimed reminder job. A returned error means the
// delivery should be retried; skipped deliveries return nil so the job
// completes.
func (e *ReminderExecutor) Execute(ctx context.Context, job *domain.ScheduledJob) error {
	log := logger.FromContextOrDefault(ctx, e.logger).With(
		slog.String("job_id", job.ID),
		slog.Int64("care_request_id", job.CareRequestID))

	snapshot, err := e.careRequests.GetCareRequest(ctx, job.CareRequestID)
	if err != nil {
		if errors.Is(err, domain.ErrCareRequestNotFound) {
			log.Warn("care request gone, dropping reminder")
			metrics.RemindersSent.WithLabelValues("skipped").Inc()
			return nil
		}
		return fmt.Errorf("load care request: %w", err)
	}

	if !snapshot.Status.IsPreArrival() {
		log.Debug("care request no longer pre-arrival, skipping reminder",
			slog.String("request_status", string(snapshot.Status)))
		metrics.RemindersSent.WithLabelValues("skipped").Inc()
		return nil
	}

	if !snapshot.Patient.VoicemailConsent {
		log.Debug("patient has not consented to contact, skipping reminder")
		metrics.RemindersSent.WithLabelValues("skipped").Inc()
		return nil
	}

	params := map[string]string{
		"messageType": runningLateMessageType,
		"status":      string(snapshot.Status),
	}
	link, err := e.linkStore.GetByCareRequestID(ctx, job.CareRequestID)
	if err == nil {
		params["url"] = e.baseURL + "/" + link.ID.String()
	} else if !errors.Is(err, store.ErrLinkNotFound) {
		return fmt.Errorf("load link: %w", err)
	}

	if err := e.sms.ExecuteFlow(ctx, e.flowSID, snapshot.Patient.MobileNumber, params); err != nil {
		metrics.RemindersSent.WithLabelValues("failed").Inc()
		return fmt.Errorf("execute sms flow: %w", err)
	}
	metrics.RemindersSent.WithLabelValues("sent").Inc()

	note := domain.CareRequestNote{
		Kind:       runningLateNoteKind,
		Body:       runningLateNoteBody,
		InTimeline: true,
	}
	if err := e.careRequests.CreateNote(ctx, job.CareRequestID, note); err != nil {
		// The SMS went out; a missing note is not worth a resend.
		log.Error("failed to leave running-late note",
			slog.String("error", err.Error()))
	}

	log.Info("running-late reminder sent")
	return nil
}
