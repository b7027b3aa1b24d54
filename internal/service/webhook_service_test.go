package service

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/companion-api/internal/domain"
	"github.com/phrazzld/companion-api/internal/store"
)

type webhookServiceFixture struct {
	svc       *WebhookService
	companion *companionServiceFixture
	locker    *MockLocker
	scheduler *MockScheduler
	unlocked  *int
}

func newWebhookServiceFixture(t *testing.T) *webhookServiceFixture {
	t.Helper()

	companion := newCompanionServiceFixture(t, nil)
	locker := &MockLocker{}
	unlocked := 0

	svc, err := NewWebhookService(
		locker,
		companion.svc,
		companion.scheduler,
		companion.linkStore,
		slog.Default(),
	)
	require.NoError(t, err)

	return &webhookServiceFixture{
		svc:       svc,
		companion: companion,
		locker:    locker,
		scheduler: companion.scheduler,
		unlocked:  &unlocked,
	}
}

func (f *webhookServiceFixture) expectLock(careRequestID int64) {
	f.locker.On("Acquire", mock.Anything, store.WebhookLockKey(careRequestID), mock.Anything).
		Return(store.UnlockFn(func(context.Context) { *f.unlocked++ }), nil)
}

func TestWebhookService_HandleDashboardWebhook(t *testing.T) {
	ctx := context.Background()

	t.Run("requested is a no-op", func(t *testing.T) {
		f := newWebhookServiceFixture(t)
		f.expectLock(42)

		result, err := f.svc.HandleDashboardWebhook(ctx, 42, domain.RequestStatusRequested)
		require.NoError(t, err)
		assert.Equal(t, WebhookResultNoOp, result.Type)
		assert.Nil(t, result.LinkID)
		assert.Equal(t, 1, *f.unlocked)
	})

	t.Run("accepted creates a link", func(t *testing.T) {
		f := newWebhookServiceFixture(t)
		f.expectLock(42)

		existing := newTestLink(t, 42)
		f.companion.linkStore.On("GetByCareRequestID", mock.Anything, int64(42)).Return(existing, nil)

		result, err := f.svc.HandleDashboardWebhook(ctx, 42, domain.RequestStatusAccepted)
		require.NoError(t, err)
		assert.Equal(t, WebhookResultCreateLink, result.Type)
		require.NotNil(t, result.LinkID)
		assert.Equal(t, existing.ID, *result.LinkID)
	})

	t.Run("redelivered accepted webhook returns the same link", func(t *testing.T) {
		f := newWebhookServiceFixture(t)
		f.expectLock(42)

		existing := newTestLink(t, 42)
		f.companion.linkStore.On("GetByCareRequestID", mock.Anything, int64(42)).Return(existing, nil)

		first, err := f.svc.HandleDashboardWebhook(ctx, 42, domain.RequestStatusAccepted)
		require.NoError(t, err)
		second, err := f.svc.HandleDashboardWebhook(ctx, 42, domain.RequestStatusScheduled)
		require.NoError(t, err)

		assert.Equal(t, *first.LinkID, *second.LinkID)
		assert.Equal(t, 2, *f.unlocked)
	})

	t.Run("on scene swallows metric failures", func(t *testing.T) {
		f := newWebhookServiceFixture(t)
		f.expectLock(42)

		f.companion.linkStore.On("GetByCareRequestID", mock.Anything, int64(42)).
			Return(nil, store.ErrLinkNotFound)

		result, err := f.svc.HandleDashboardWebhook(ctx, 42, domain.RequestStatusOnScene)
		require.NoError(t, err)
		assert.Equal(t, WebhookResultOnScene, result.Type)
	})

	t.Run("on route surfaces failures", func(t *testing.T) {
		f := newWebhookServiceFixture(t)
		f.expectLock(42)

		f.scheduler.On("Cancel", mock.Anything, int64(42)).Return(nil)
		f.companion.linkStore.On("GetByCareRequestID", mock.Anything, int64(42)).
			Return(nil, store.ErrLinkNotFound)

		_, err := f.svc.HandleDashboardWebhook(ctx, 42, domain.RequestStatusOnRoute)
		assert.Error(t, err)
		assert.Equal(t, 1, *f.unlocked)
	})

	t.Run("unknown status is rejected", func(t *testing.T) {
		f := newWebhookServiceFixture(t)
		f.expectLock(42)

		_, err := f.svc.HandleDashboardWebhook(ctx, 42, domain.RequestStatus("billing"))
		assert.ErrorIs(t, err, ErrUnsupportedStatus)
		assert.Equal(t, 1, *f.unlocked)
	})

	t.Run("lock unavailable", func(t *testing.T) {
		f := newWebhookServiceFixture(t)
		f.locker.On("Acquire", mock.Anything, store.WebhookLockKey(42), mock.Anything).
			Return(nil, store.ErrLockUnavailable)

		_, err := f.svc.HandleDashboardWebhook(ctx, 42, domain.RequestStatusAccepted)
		assert.ErrorIs(t, err, store.ErrLockUnavailable)
	})
}

func TestWebhookService_HandleEtaRangeWebhook(t *testing.T) {
	ctx := context.Background()

	t.Run("reschedules while awaiting the care team", func(t *testing.T) {
		for _, status := range []domain.RequestStatus{
			domain.RequestStatusRequested,
			domain.RequestStatusAccepted,
			domain.RequestStatusScheduled,
			domain.RequestStatusCommitted,
		} {
			t.Run(string(status), func(t *testing.T) {
				f := newWebhookServiceFixture(t)
				f.expectLock(42)

				link := newTestLink(t, 42)
				f.companion.linkStore.On("GetByCareRequestID", mock.Anything, int64(42)).Return(link, nil)
				f.scheduler.On("Reschedule", mock.Anything, int64(42)).Return(nil)

				result, err := f.svc.HandleEtaRangeWebhook(ctx, 42, status)
				require.NoError(t, err)
				assert.Equal(t, WebhookResultUpdatedEta, result.Type)
				f.scheduler.AssertCalled(t, "Reschedule", mock.Anything, int64(42))
			})
		}
	})

	t.Run("cancels once the care team departed", func(t *testing.T) {
		f := newWebhookServiceFixture(t)
		f.expectLock(42)

		link := newTestLink(t, 42)
		f.companion.linkStore.On("GetByCareRequestID", mock.Anything, int64(42)).Return(link, nil)
		f.scheduler.On("Cancel", mock.Anything, int64(42)).Return(nil)

		result, err := f.svc.HandleEtaRangeWebhook(ctx, 42, domain.RequestStatusOnRoute)
		require.NoError(t, err)
		assert.Equal(t, WebhookResultUpdatedEta, result.Type)
		f.scheduler.AssertNotCalled(t, "Reschedule", mock.Anything, mock.Anything)
	})

	t.Run("cancels when no link exists", func(t *testing.T) {
		f := newWebhookServiceFixture(t)
		f.expectLock(42)

		f.companion.linkStore.On("GetByCareRequestID", mock.Anything, int64(42)).
			Return(nil, store.ErrLinkNotFound)
		f.scheduler.On("Cancel", mock.Anything, int64(42)).Return(nil)

		result, err := f.svc.HandleEtaRangeWebhook(ctx, 42, domain.RequestStatusAccepted)
		require.NoError(t, err)
		assert.Equal(t, WebhookResultUpdatedEta, result.Type)
		f.scheduler.AssertCalled(t, "Cancel", mock.Anything, int64(42))
	})
}
