package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/companion-api/internal/domain"
	"github.com/phrazzld/companion-api/internal/metrics"
	"github.com/phrazzld/companion-api/internal/platform/logger"
	"github.com/phrazzld/companion-api/internal/store"
)

// webhookLockWait bounds how long a webhook waits for its care
// request's lock before giving up with ErrLockUnavailable.
const webhookLockWait = 10 * time.Second

// WebhookResultType discriminates what a webhook handler did.
type WebhookResultType string

// Webhook result discriminators, returned verbatim in the response
// body.
const (
	WebhookResultNoOp       WebhookResultType = "NO_OP"
	WebhookResultCreateLink WebhookResultType = "CREATE_LINK"
	WebhookResultOnScene    WebhookResultType = "ON_SCENE"
	WebhookResultOnRoute    WebhookResultType = "ON_ROUTE"
	WebhookResultUpdatedEta WebhookResultType = "UPDATED_ETA"
)

// WebhookResult is the outcome of processing one webhook delivery.
// LinkID is set only for CREATE_LINK results.
type WebhookResult struct {
	Type   WebhookResultType `json:"type"`
	LinkID *uuid.UUID        `json:"linkId,omitempty"`
}

// WebhookService serializes and dispatches care request status
// webhooks. All processing for one care request happens under a
// distributed lock so redelivered or concurrent webhooks cannot
// interleave.
type WebhookService struct {
	locker    store.Locker
	companion *CompanionService
	scheduler ReminderScheduler
	linkStore store.LinkStore
	lockWait  time.Duration
	logger    *slog.Logger
}

// NewWebhookService creates a new WebhookService.
func NewWebhookService(
	locker store.Locker,
	companion *CompanionService,
	scheduler ReminderScheduler,
	linkStore store.LinkStore,
	log *slog.Logger,
) (*WebhookService, error) {
	if locker == nil {
		return nil, errors.New("locker cannot be nil")
	}
	if companion == nil {
		return nil, errors.New("companion cannot be nil")
	}
	if scheduler == nil {
		return nil, errors.New("scheduler cannot be nil")
	}
	if linkStore == nil {
		return nil, errors.New("linkStore cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	return &WebhookService{
		locker:    locker,
		companion: companion,
		scheduler: scheduler,
		linkStore: linkStore,
		lockWait:  webhookLockWait,
		logger:    log.With(slog.String("component", "webhook_service")),
	}, nil
}

// HandleDashboardWebhook processes a care request status change.
// Unknown statuses fail with ErrUnsupportedStatus; a lock that cannot
// be acquired within the bounded wait fails with
// store.ErrLockUnavailable so the sender retries the delivery.
func (s *WebhookService) HandleDashboardWebhook(ctx context.Context, careRequestID int64, status domain.RequestStatus) (*WebhookResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	metrics.WebhooksReceived.WithLabelValues(string(status)).Inc()

	unlock, err := s.acquireLock(ctx, careRequestID)
	if err != nil {
		return nil, err
	}
	defer unlock(ctx)

	log.Debug("processing care request webhook",
		slog.Int64("care_request_id", careRequestID),
		slog.String("request_status", string(status)))

	switch status {
	case domain.RequestStatusRequested:
		return &WebhookResult{Type: WebhookResultNoOp}, nil

	case domain.RequestStatusAccepted, domain.RequestStatusScheduled:
		linkID, err := s.companion.CreateOrGetLink(ctx, careRequestID)
		if err != nil {
			return nil, err
		}
		return &WebhookResult{Type: WebhookResultCreateLink, LinkID: &linkID}, nil

	case domain.RequestStatusOnScene:
		s.companion.OnCareRequestOnScene(ctx, careRequestID)
		return &WebhookResult{Type: WebhookResultOnScene}, nil

	case domain.RequestStatusOnRoute:
		if err := s.companion.OnCareRequestOnRoute(ctx, careRequestID); err != nil {
			return nil, err
		}
		return &WebhookResult{Type: WebhookResultOnRoute}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedStatus, status)
	}
}

// HandleEtaRangeWebhook processes a new arrival-estimate window. While
// the visit is still ahead of the care team's departure the reminder
// is rescheduled against the new window; in every other situation any
// scheduled reminder is cancelled.
func (s *WebhookService) HandleEtaRangeWebhook(ctx context.Context, careRequestID int64, status domain.RequestStatus) (*WebhookResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	unlock, err := s.acquireLock(ctx, careRequestID)
	if err != nil {
		return nil, err
	}
	defer unlock(ctx)

	_, err = s.linkStore.GetByCareRequestID(ctx, careRequestID)
	if err != nil {
		if !errors.Is(err, store.ErrLinkNotFound) {
			return nil, err
		}
		log.Debug("eta update for care request without a link, cancelling reminder",
			slog.Int64("care_request_id", careRequestID))
		if err := s.scheduler.Cancel(ctx, careRequestID); err != nil {
			return nil, err
		}
		return &WebhookResult{Type: WebhookResultUpdatedEta}, nil
	}

	if status.IsPreArrival() {
		if err := s.scheduler.Reschedule(ctx, careRequestID); err != nil {
			return nil, err
		}
	} else {
		if err := s.scheduler.Cancel(ctx, careRequestID); err != nil {
			return nil, err
		}
	}

	return &WebhookResult{Type: WebhookResultUpdatedEta}, nil
}

func (s *WebhookService) acquireLock(ctx context.Context, careRequestID int64) (store.UnlockFn, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	unlock, err := s.locker.Acquire(ctx, store.WebhookLockKey(careRequestID), s.lockWait)
	if err != nil {
		if errors.Is(err, store.ErrLockUnavailable) {
			metrics.WebhookLockTimeouts.Inc()
			log.Warn("webhook lock unavailable",
				slog.Int64("care_request_id", careRequestID))
		}
		return nil, err
	}
	return unlock, nil
}
