package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/companion-api/internal/config"
	"github.com/phrazzld/companion-api/internal/domain"
	"github.com/phrazzld/companion-api/internal/events"
	"github.com/phrazzld/companion-api/internal/platform/flags"
	"github.com/phrazzld/companion-api/internal/store"
)

const testFlowSID = "FW00000000000000000000000000000000"

type companionServiceFixture struct {
	svc       *CompanionService
	linkStore *MockLinkStore
	taskStore *MockTaskStore
	gateway   *MockGateway
	sms       *MockSmsSender
	scheduler *MockScheduler
	emitter   *recordingEmitter
}

func newCompanionServiceFixture(t *testing.T, flagProvider flags.Provider) *companionServiceFixture {
	t.Helper()

	if flagProvider == nil {
		flagProvider = flags.NewStaticProvider(nil, nil)
	}

	linkStore := &MockLinkStore{}
	taskStore := &MockTaskStore{}
	gateway := &MockGateway{}
	sms := &MockSmsSender{}
	scheduler := &MockScheduler{}
	emitter := &recordingEmitter{}

	noteSync, err := NewNoteSynchronizer(taskStore, gateway, flagProvider, slog.Default())
	require.NoError(t, err)

	svc, err := NewCompanionService(
		&sql.DB{},
		linkStore,
		taskStore,
		gateway,
		sms,
		scheduler,
		noteSync,
		flagProvider,
		emitter,
		config.CompanionConfig{
			BaseURL:         "https://companion.example.com",
			MaxAuthAttempts: 3,
			LinkExpiryHours: 24,
		},
		testFlowSID,
		slog.Default(),
	)
	require.NoError(t, err)

	return &companionServiceFixture{
		svc:       svc,
		linkStore: linkStore,
		taskStore: taskStore,
		gateway:   gateway,
		sms:       sms,
		scheduler: scheduler,
		emitter:   emitter,
	}
}

func newTestLink(t *testing.T, careRequestID int64) *domain.CompanionLink {
	t.Helper()
	link, err := domain.NewCompanionLink(careRequestID)
	require.NoError(t, err)
	return link
}

func newTestTask(t *testing.T, linkID uuid.UUID, taskType domain.TaskType, statuses ...domain.TaskStatusName) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(linkID, taskType, nil)
	require.NoError(t, err)
	base := time.Now().UTC().Add(-time.Hour)
	for i, name := range statuses {
		task.Statuses = append(task.Statuses, domain.TaskStatus{
			ID:        int64(i + 1),
			TaskID:    task.ID,
			Name:      name,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return task
}

func TestNewCompanionService_NilDependencies(t *testing.T) {
	flagProvider := flags.NewStaticProvider(nil, nil)
	noteSync, err := NewNoteSynchronizer(&MockTaskStore{}, &MockGateway{}, flagProvider, slog.Default())
	require.NoError(t, err)

	_, err = NewCompanionService(
		nil, &MockLinkStore{}, &MockTaskStore{}, &MockGateway{}, &MockSmsSender{},
		&MockScheduler{}, noteSync, flagProvider, &recordingEmitter{},
		config.CompanionConfig{}, testFlowSID, slog.Default(),
	)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "db")

	_, err = NewCompanionService(
		&sql.DB{}, nil, &MockTaskStore{}, &MockGateway{}, &MockSmsSender{},
		&MockScheduler{}, noteSync, flagProvider, &recordingEmitter{},
		config.CompanionConfig{}, testFlowSID, slog.Default(),
	)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "linkStore")

	_, err = NewCompanionService(
		&sql.DB{}, &MockLinkStore{}, &MockTaskStore{}, &MockGateway{}, &MockSmsSender{},
		&MockScheduler{}, nil, flagProvider, &recordingEmitter{},
		config.CompanionConfig{}, testFlowSID, slog.Default(),
	)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "noteSync")
}

func TestCompanionService_CreateOrGetLink_Existing(t *testing.T) {
	ctx := context.Background()
	f := newCompanionServiceFixture(t, nil)

	existing := newTestLink(t, 42)
	f.linkStore.On("GetByCareRequestID", ctx, int64(42)).Return(existing, nil)

	got, err := f.svc.CreateOrGetLink(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, got)

	// A second delivery of the same webhook returns the same id and
	// never reaches the write path.
	again, err := f.svc.CreateOrGetLink(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, again)

	f.linkStore.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.taskStore.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)
	f.sms.AssertNotCalled(t, "ExecuteFlow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCompanionService_CreateOrGetLink_LookupError(t *testing.T) {
	ctx := context.Background()
	f := newCompanionServiceFixture(t, nil)

	f.linkStore.On("GetByCareRequestID", ctx, int64(42)).
		Return(nil, errors.New("connection refused"))

	_, err := f.svc.CreateOrGetLink(ctx, 42)
	assert.Error(t, err)

	var svcErr *CompanionServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "create_link", svcErr.Operation)
}

func TestCompanionService_CreateOrGetLink_NewLink(t *testing.T) {
	// The creation path wraps its writes in a database transaction.
	t.Skip("Skipping transaction test - requires integration test environment")
}

func TestCompanionService_ResolveActiveLink(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown link", func(t *testing.T) {
		f := newCompanionServiceFixture(t, nil)
		id := uuid.New()
		f.linkStore.On("GetByID", ctx, id).Return(nil, store.ErrLinkNotFound)

		_, _, err := f.svc.ResolveActiveLink(ctx, id)
		assert.ErrorIs(t, err, store.ErrLinkNotFound)
	})

	t.Run("blocked link", func(t *testing.T) {
		f := newCompanionServiceFixture(t, nil)
		link := newTestLink(t, 42)
		link.IsBlocked = true
		f.linkStore.On("GetByID", ctx, link.ID).Return(link, nil)

		_, _, err := f.svc.ResolveActiveLink(ctx, link.ID)
		assert.ErrorIs(t, err, ErrLinkBlocked)
	})

	t.Run("care request gone", func(t *testing.T) {
		f := newCompanionServiceFixture(t, nil)
		link := newTestLink(t, 42)
		f.linkStore.On("GetByID", ctx, link.ID).Return(link, nil)
		f.gateway.On("GetCareRequest", ctx, int64(42)).
			Return(nil, domain.ErrCareRequestNotFound)

		_, _, err := f.svc.ResolveActiveLink(ctx, link.ID)
		assert.ErrorIs(t, err, ErrLinkGone)
	})

	t.Run("visit complete past expiry", func(t *testing.T) {
		f := newCompanionServiceFixture(t, nil)
		link := newTestLink(t, 42)
		link.UpdatedAt = time.Now().UTC().Add(-48 * time.Hour)
		f.linkStore.On("GetByID", ctx, link.ID).Return(link, nil)
		f.gateway.On("GetCareRequest", ctx, int64(42)).
			Return(&domain.CareRequestSnapshot{ID: 42, Status: domain.RequestStatusArchived}, nil)

		_, _, err := f.svc.ResolveActiveLink(ctx, link.ID)
		assert.ErrorIs(t, err, ErrLinkGone)
	})

	t.Run("visit complete within expiry window", func(t *testing.T) {
		f := newCompanionServiceFixture(t, nil)
		link := newTestLink(t, 42)
		f.linkStore.On("GetByID", ctx, link.ID).Return(link, nil)
		f.gateway.On("GetCareRequest", ctx, int64(42)).
			Return(&domain.CareRequestSnapshot{ID: 42, Status: domain.RequestStatusComplete}, nil)

		got, snapshot, err := f.svc.ResolveActiveLink(ctx, link.ID)
		require.NoError(t, err)
		assert.Equal(t, link.ID, got.ID)
		assert.Equal(t, domain.RequestStatusComplete, snapshot.Status)
	})

	t.Run("active visit", func(t *testing.T) {
		f := newCompanionServiceFixture(t, nil)
		link := newTestLink(t, 42)
		f.linkStore.On("GetByID", ctx, link.ID).Return(link, nil)
		f.gateway.On("GetCareRequest", ctx, int64(42)).
			Return(&domain.CareRequestSnapshot{ID: 42, Status: domain.RequestStatusOnRoute}, nil)

		got, _, err := f.svc.ResolveActiveLink(ctx, link.ID)
		require.NoError(t, err)
		assert.Equal(t, link.ID, got.ID)
	})
}

func TestCompanionService_Authenticate(t *testing.T) {
	ctx := context.Background()

	snapshotWithDOB := func(dob string) *domain.CareRequestSnapshot {
		return &domain.CareRequestSnapshot{
			ID:     42,
			Status: domain.RequestStatusAccepted,
			Patient: domain.SnapshotPatient{
				ID:          7,
				DateOfBirth: dob,
			},
		}
	}

	t.Run("correct date of birth", func(t *testing.T) {
		f := newCompanionServiceFixture(t, nil)
		link := newTestLink(t, 42)
		f.linkStore.On("GetByID", ctx, link.ID).Return(link, nil)
		f.gateway.On("GetCareRequest", ctx, int64(42)).Return(snapshotWithDOB("1984-02-14"), nil)

		err := f.svc.Authenticate(ctx, link.ID, "1984-02-14")
		assert.NoError(t, err)
		f.linkStore.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("wrong date of birth records the attempt", func(t *testing.T) {
		f := newCompanionServiceFixture(t, nil)
		link := newTestLink(t, 42)
		f.linkStore.On("GetByID", ctx, link.ID).Return(link, nil)
		f.gateway.On("GetCareRequest", ctx, int64(42)).Return(snapshotWithDOB("1984-02-14"), nil)
		f.linkStore.On("Update", ctx, link).Return(nil)

		err := f.svc.Authenticate(ctx, link.ID, "1990-01-01")
		assert.ErrorIs(t, err, ErrAuthFailed)
		assert.Equal(t, 1, link.InvalidAuthCount)
		assert.NotNil(t, link.LastInvalidAuth)
		assert.False(t, link.IsBlocked)
	})

	t.Run("blocks at max attempts and stays blocked", func(t *testing.T) {
		f := newCompanionServiceFixture(t, nil)
		link := newTestLink(t, 42)
		f.linkStore.On("GetByID", ctx, link.ID).Return(link, nil)
		f.gateway.On("GetCareRequest", ctx, int64(42)).Return(snapshotWithDOB("1984-02-14"), nil)
		f.linkStore.On("Update", ctx, link).Return(nil)

		for i := 0; i < 3; i++ {
			err := f.svc.Authenticate(ctx, link.ID, "1990-01-01")
			assert.ErrorIs(t, err, ErrAuthFailed)
		}
		assert.True(t, link.IsBlocked)

		// Even the right date of birth is rejected now.
		err := f.svc.Authenticate(ctx, link.ID, "1984-02-14")
		assert.ErrorIs(t, err, ErrLinkBlocked)
	})

	t.Run("successful auth resets the counter", func(t *testing.T) {
		f := newCompanionServiceFixture(t, nil)
		link := newTestLink(t, 42)
		link.InvalidAuthCount = 2
		now := time.Now().UTC()
		link.LastInvalidAuth = &now
		f.linkStore.On("GetByID", ctx, link.ID).Return(link, nil)
		f.gateway.On("GetCareRequest", ctx, int64(42)).Return(snapshotWithDOB("1984-02-14"), nil)
		f.linkStore.On("Update", ctx, link).Return(nil)

		err := f.svc.Authenticate(ctx, link.ID, "1984-02-14")
		require.NoError(t, err)
		assert.Equal(t, 0, link.InvalidAuthCount)
		assert.Nil(t, link.LastInvalidAuth)
	})
}

func TestCompanionService_UpdateTaskStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("no-op when status unchanged", func(t *testing.T) {
		f := newCompanionServiceFixture(t, nil)
		link := newTestLink(t, 42)
		task := newTestTask(t, link.ID, domain.TaskTypeDefaultPharmacy, domain.TaskStatusCompleted)

		err := f.svc.UpdateTaskStatus(ctx, task, domain.TaskStatusCompleted)
		require.NoError(t, err)
		f.taskStore.AssertNotCalled(t, "AppendStatus", mock.Anything, mock.Anything, mock.Anything)
		assert.Empty(t, f.emitter.byType(events.TypeTaskStatusChanged))
	})

	t.Run("appends and emits when status differs", func(t *testing.T) {
		f := newCompanionServiceFixture(t, nil)
		link := newTestLink(t, 42)
		task := newTestTask(t, link.ID, domain.TaskTypeDefaultPharmacy, domain.TaskStatusNotStarted)

		appended := &domain.TaskStatus{
			ID:        99,
			TaskID:    task.ID,
			Name:      domain.TaskStatusCompleted,
			CreatedAt: time.Now().UTC(),
		}
		f.taskStore.On("AppendStatus", ctx, task.ID, domain.TaskStatusCompleted).Return(appended, nil)
		f.linkStore.On("GetByID", ctx, link.ID).Return(link, nil)

		err := f.svc.UpdateTaskStatus(ctx, task, domain.TaskStatusCompleted)
		require.NoError(t, err)

		assert.Equal(t, domain.TaskStatusCompleted, task.ActiveStatus().Name)

		emitted := f.emitter.byType(events.TypeTaskStatusChanged)
		require.Len(t, emitted, 1)
		var payload events.TaskStatusChangedPayload
		require.NoError(t, emitted[0].UnmarshalPayload(&payload))
		assert.Equal(t, int64(42), payload.CareRequestID)
		assert.Equal(t, string(domain.TaskTypeDefaultPharmacy), payload.TaskType)
		assert.Equal(t, string(domain.TaskStatusCompleted), payload.Status)
	})

	t.Run("reverting to an earlier status appends again", func(t *testing.T) {
		f := newCompanionServiceFixture(t, nil)
		link := newTestLink(t, 42)
		task := newTestTask(t, link.ID, domain.TaskTypeIdentificationImage,
			domain.TaskStatusNotStarted, domain.TaskStatusCompleted)

		appended := &domain.TaskStatus{
			ID:        100,
			TaskID:    task.ID,
			Name:      domain.TaskStatusNotStarted,
			CreatedAt: time.Now().UTC(),
		}
		f.taskStore.On("AppendStatus", ctx, task.ID, domain.TaskStatusNotStarted).Return(appended, nil)
		f.linkStore.On("GetByID", ctx, link.ID).Return(link, nil)

		err := f.svc.UpdateTaskStatus(ctx, task, domain.TaskStatusNotStarted)
		require.NoError(t, err)
		f.taskStore.AssertCalled(t, "AppendStatus", ctx, task.ID, domain.TaskStatusNotStarted)
		assert.Equal(t, domain.TaskStatusNotStarted, task.ActiveStatus().Name)
	})
}

func TestCompanionService_OnCareRequestOnRoute(t *testing.T) {
	ctx := context.Background()

	onRouteSnapshot := func(consent bool) *domain.CareRequestSnapshot {
		return &domain.CareRequestSnapshot{
			ID:     42,
			Status: domain.RequestStatusOnRoute,
			Patient: domain.SnapshotPatient{
				ID:               7,
				MobileNumber:     "+15555550100",
				VoicemailConsent: consent,
			},
		}
	}

	t.Run("sends sms with pending task text and syncs note", func(t *testing.T) {
		flagProvider := flags.NewStaticProvider(nil, map[string][]string{
			flags.KeyDisplayedNoteTasks: {
				string(domain.TaskTypeIdentificationImage),
				string(domain.TaskTypeInsuranceCardImages),
			},
		})
		f := newCompanionServiceFixture(t, flagProvider)

		link := newTestLink(t, 42)
		tasks := []*domain.Task{
			newTestTask(t, link.ID, domain.TaskTypeIdentificationImage, domain.TaskStatusNotStarted),
			newTestTask(t, link.ID, domain.TaskTypeInsuranceCardImages, domain.TaskStatusNotStarted),
			newTestTask(t, link.ID, domain.TaskTypeDefaultPharmacy, domain.TaskStatusCompleted),
			newTestTask(t, link.ID, domain.TaskTypePrimaryCareProvider, domain.TaskStatusCompleted),
			newTestTask(t, link.ID, domain.TaskTypeMedicationConsent, domain.TaskStatusCompleted),
		}

		f.scheduler.On("Cancel", ctx, int64(42)).Return(nil)
		f.linkStore.On("GetByCareRequestID", ctx, int64(42)).Return(link, nil)
		f.gateway.On("GetCareRequest", ctx, int64(42)).Return(onRouteSnapshot(true), nil)
		f.taskStore.On("GetByLinkID", ctx, link.ID).Return(tasks, nil)
		f.linkStore.On("Update", ctx, link).Return(nil)
		f.gateway.On("ListNotes", ctx, int64(42), "companion_tasks").
			Return([]domain.CareRequestNote{}, nil)
		f.gateway.On("CreateNote", ctx, int64(42), mock.Anything).Return(nil)

		var sentParams map[string]string
		f.sms.On("ExecuteFlow", ctx, testFlowSID, "+15555550100", mock.Anything).
			Run(func(args mock.Arguments) {
				sentParams = args.Get(3).(map[string]string)
			}).
			Return(nil)

		err := f.svc.OnCareRequestOnRoute(ctx, 42)
		require.NoError(t, err)

		require.NotNil(t, sentParams)
		assert.Equal(t, "ID and insurance card", sentParams["pendingTaskText"])
		assert.Equal(t, "on_route", sentParams["status"])
		assert.True(t, link.OnRouteNotificationSent)
		f.gateway.AssertCalled(t, "CreateNote", ctx, int64(42), mock.Anything)
	})

	t.Run("skips sms without consent but still syncs note", func(t *testing.T) {
		f := newCompanionServiceFixture(t, nil)
		link := newTestLink(t, 42)

		f.scheduler.On("Cancel", ctx, int64(42)).Return(nil)
		f.linkStore.On("GetByCareRequestID", ctx, int64(42)).Return(link, nil)
		f.gateway.On("GetCareRequest", ctx, int64(42)).Return(onRouteSnapshot(false), nil)
		f.taskStore.On("GetByLinkID", ctx, link.ID).Return([]*domain.Task{}, nil)
		f.gateway.On("ListNotes", ctx, int64(42), "companion_tasks").
			Return([]domain.CareRequestNote{}, nil)
		f.gateway.On("CreateNote", ctx, int64(42), mock.Anything).Return(nil)

		err := f.svc.OnCareRequestOnRoute(ctx, 42)
		require.NoError(t, err)

		f.sms.AssertNotCalled(t, "ExecuteFlow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.gateway.AssertCalled(t, "CreateNote", ctx, int64(42), mock.Anything)
	})

	t.Run("second on-route webhook does not resend sms", func(t *testing.T) {
		f := newCompanionServiceFixture(t, nil)
		link := newTestLink(t, 42)
		link.OnRouteNotificationSent = true

		f.scheduler.On("Cancel", ctx, int64(42)).Return(nil)
		f.linkStore.On("GetByCareRequestID", ctx, int64(42)).Return(link, nil)
		f.gateway.On("GetCareRequest", ctx, int64(42)).Return(onRouteSnapshot(true), nil)
		f.taskStore.On("GetByLinkID", ctx, link.ID).Return([]*domain.Task{}, nil)
		f.gateway.On("ListNotes", ctx, int64(42), "companion_tasks").
			Return([]domain.CareRequestNote{}, nil)
		f.gateway.On("CreateNote", ctx, int64(42), mock.Anything).Return(nil)

		err := f.svc.OnCareRequestOnRoute(ctx, 42)
		require.NoError(t, err)
		f.sms.AssertNotCalled(t, "ExecuteFlow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("cancel failure does not abort handling", func(t *testing.T) {
		f := newCompanionServiceFixture(t, nil)
		link := newTestLink(t, 42)
		link.OnRouteNotificationSent = true

		f.scheduler.On("Cancel", ctx, int64(42)).Return(errors.New("queue down"))
		f.linkStore.On("GetByCareRequestID", ctx, int64(42)).Return(link, nil)
		f.gateway.On("GetCareRequest", ctx, int64(42)).Return(onRouteSnapshot(true), nil)
		f.taskStore.On("GetByLinkID", ctx, link.ID).Return([]*domain.Task{}, nil)
		f.gateway.On("ListNotes", ctx, int64(42), "companion_tasks").
			Return([]domain.CareRequestNote{}, nil)
		f.gateway.On("CreateNote", ctx, int64(42), mock.Anything).Return(nil)

		err := f.svc.OnCareRequestOnRoute(ctx, 42)
		assert.NoError(t, err)
	})
}

func TestCompanionService_PendingTaskText(t *testing.T) {
	linkID := uuid.New()

	tests := []struct {
		name            string
		consentsEnabled bool
		tasks           func(t *testing.T) []*domain.Task
		want            string
	}{
		{
			name: "nothing pending",
			tasks: func(t *testing.T) []*domain.Task {
				return []*domain.Task{
					newTestTask(t, linkID, domain.TaskTypeIdentificationImage, domain.TaskStatusCompleted),
				}
			},
			want: "",
		},
		{
			name: "one pending",
			tasks: func(t *testing.T) []*domain.Task {
				return []*domain.Task{
					newTestTask(t, linkID, domain.TaskTypeIdentificationImage, domain.TaskStatusNotStarted),
				}
			},
			want: "ID",
		},
		{
			name: "two pending joined with and",
			tasks: func(t *testing.T) []*domain.Task {
				return []*domain.Task{
					newTestTask(t, linkID, domain.TaskTypeInsuranceCardImages, domain.TaskStatusStarted),
					newTestTask(t, linkID, domain.TaskTypeDefaultPharmacy, domain.TaskStatusNotStarted),
				}
			},
			want: "insurance card and pharmacy",
		},
		{
			name: "three or more collapse",
			tasks: func(t *testing.T) []*domain.Task {
				return []*domain.Task{
					newTestTask(t, linkID, domain.TaskTypeIdentificationImage, domain.TaskStatusNotStarted),
					newTestTask(t, linkID, domain.TaskTypeInsuranceCardImages, domain.TaskStatusNotStarted),
					newTestTask(t, linkID, domain.TaskTypeDefaultPharmacy, domain.TaskStatusNotStarted),
				}
			},
			want: "required information",
		},
		{
			name: "consents ignored while module disabled",
			tasks: func(t *testing.T) []*domain.Task {
				return []*domain.Task{
					newTestTask(t, linkID, domain.TaskTypeConsents, domain.TaskStatusNotStarted),
					newTestTask(t, linkID, domain.TaskTypeMedicationConsent, domain.TaskStatusNotStarted),
				}
			},
			want: "medications",
		},
		{
			name:            "medication consent ignored while module enabled",
			consentsEnabled: true,
			tasks: func(t *testing.T) []*domain.Task {
				return []*domain.Task{
					newTestTask(t, linkID, domain.TaskTypeConsents, domain.TaskStatusNotStarted),
					newTestTask(t, linkID, domain.TaskTypeMedicationConsent, domain.TaskStatusNotStarted),
				}
			},
			want: "consents",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flagProvider := flags.NewStaticProvider(map[string]bool{
				flags.KeyConsentsModule: tt.consentsEnabled,
			}, nil)
			f := newCompanionServiceFixture(t, flagProvider)

			got := f.svc.pendingTaskText(tt.tasks(t))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompanionService_GetCompanionInfo_FiltersConsentPair(t *testing.T) {
	ctx := context.Background()
	f := newCompanionServiceFixture(t, flags.NewStaticProvider(map[string]bool{
		flags.KeyConsentsModule: true,
	}, nil))

	link := newTestLink(t, 42)
	tasks := []*domain.Task{
		newTestTask(t, link.ID, domain.TaskTypeIdentificationImage, domain.TaskStatusNotStarted),
		newTestTask(t, link.ID, domain.TaskTypeConsents, domain.TaskStatusNotStarted),
		newTestTask(t, link.ID, domain.TaskTypeMedicationConsent, domain.TaskStatusNotStarted),
	}

	f.linkStore.On("GetByID", ctx, link.ID).Return(link, nil)
	f.gateway.On("GetCareRequest", ctx, int64(42)).
		Return(&domain.CareRequestSnapshot{ID: 42, Status: domain.RequestStatusAccepted}, nil)
	f.taskStore.On("GetByLinkID", ctx, link.ID).Return(tasks, nil)

	info, err := f.svc.GetCompanionInfo(ctx, link.ID)
	require.NoError(t, err)
	require.Len(t, info.Tasks, 2)
	for _, task := range info.Tasks {
		assert.NotEqual(t, domain.TaskTypeMedicationConsent, task.Type)
	}
}

func TestCompanionService_GetCareTeamEta(t *testing.T) {
	ctx := context.Background()
	f := newCompanionServiceFixture(t, nil)

	link := newTestLink(t, 42)
	now := time.Now().UTC()
	snapshot := &domain.CareRequestSnapshot{
		ID:     42,
		Status: domain.RequestStatusAccepted,
		EtaRanges: []domain.EtaRange{
			{ID: 1, StartsAt: now, EndsAt: now.Add(time.Hour), CreatedAt: now.Add(-time.Hour)},
			{ID: 2, StartsAt: now.Add(2 * time.Hour), EndsAt: now.Add(3 * time.Hour), CreatedAt: now},
		},
	}
	f.linkStore.On("GetByID", ctx, link.ID).Return(link, nil)
	f.gateway.On("GetCareRequest", ctx, int64(42)).Return(snapshot, nil)

	eta, err := f.svc.GetCareTeamEta(ctx, link.ID)
	require.NoError(t, err)
	// The most recently created window wins, not the earliest.
	assert.Equal(t, now.Add(3*time.Hour), eta.EndsAt)
}
