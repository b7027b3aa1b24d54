package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/companion-api/internal/domain"
	"github.com/phrazzld/companion-api/internal/events"
	"github.com/phrazzld/companion-api/internal/store"
	"github.com/stretchr/testify/mock"
)

// MockLinkStore mocks the store.LinkStore interface
type MockLinkStore struct {
	mock.Mock
}

func (m *MockLinkStore) Create(ctx context.Context, link *domain.CompanionLink) error {
	args := m.Called(ctx, link)
	return args.Error(0)
}

func (m *MockLinkStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.CompanionLink, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CompanionLink), args.Error(1)
}

func (m *MockLinkStore) GetByCareRequestID(ctx context.Context, careRequestID int64) (*domain.CompanionLink, error) {
	args := m.Called(ctx, careRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CompanionLink), args.Error(1)
}

func (m *MockLinkStore) Update(ctx context.Context, link *domain.CompanionLink) error {
	args := m.Called(ctx, link)
	return args.Error(0)
}

func (m *MockLinkStore) WithTx(tx *sql.Tx) store.LinkStore {
	args := m.Called(tx)
	return args.Get(0).(store.LinkStore)
}

// MockTaskStore mocks the store.TaskStore interface
type MockTaskStore struct {
	mock.Mock
}

func (m *MockTaskStore) CreateBatch(ctx context.Context, tasks []*domain.Task) error {
	args := m.Called(ctx, tasks)
	return args.Error(0)
}

func (m *MockTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Task), args.Error(1)
}

func (m *MockTaskStore) GetByLinkID(ctx context.Context, linkID uuid.UUID) ([]*domain.Task, error) {
	args := m.Called(ctx, linkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Task), args.Error(1)
}

func (m *MockTaskStore) GetByLinkAndType(ctx context.Context, linkID uuid.UUID, taskType domain.TaskType) (*domain.Task, error) {
	args := m.Called(ctx, linkID, taskType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Task), args.Error(1)
}

func (m *MockTaskStore) AppendStatus(ctx context.Context, taskID uuid.UUID, name domain.TaskStatusName) (*domain.TaskStatus, error) {
	args := m.Called(ctx, taskID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TaskStatus), args.Error(1)
}

func (m *MockTaskStore) UpdateMetadata(ctx context.Context, taskID uuid.UUID, metadata domain.TaskMetadata) error {
	args := m.Called(ctx, taskID, metadata)
	return args.Error(0)
}

func (m *MockTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	args := m.Called(tx)
	return args.Get(0).(store.TaskStore)
}

// MockGateway mocks the CareRequestGateway interface
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) GetCareRequest(ctx context.Context, careRequestID int64) (*domain.CareRequestSnapshot, error) {
	args := m.Called(ctx, careRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CareRequestSnapshot), args.Error(1)
}

func (m *MockGateway) HasIdentificationImage(ctx context.Context, careRequestID int64) (bool, error) {
	args := m.Called(ctx, careRequestID)
	return args.Bool(0), args.Error(1)
}

func (m *MockGateway) ListInsurances(ctx context.Context, careRequestID int64) ([]domain.InsuranceRecord, error) {
	args := m.Called(ctx, careRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.InsuranceRecord), args.Error(1)
}

func (m *MockGateway) HasDefaultPharmacy(ctx context.Context, careRequestID int64) (bool, error) {
	args := m.Called(ctx, careRequestID)
	return args.Bool(0), args.Error(1)
}

func (m *MockGateway) SetDefaultPharmacy(ctx context.Context, careRequestID int64, clinicalProviderID string) error {
	args := m.Called(ctx, careRequestID, clinicalProviderID)
	return args.Error(0)
}

func (m *MockGateway) SetPrimaryCareProvider(ctx context.Context, careRequestID int64, clinicalProviderID string) error {
	args := m.Called(ctx, careRequestID, clinicalProviderID)
	return args.Error(0)
}

func (m *MockGateway) HasMedicationHistoryConsent(ctx context.Context, careRequestID int64) (bool, error) {
	args := m.Called(ctx, careRequestID)
	return args.Bool(0), args.Error(1)
}

func (m *MockGateway) GrantMedicationHistoryConsent(ctx context.Context, careRequestID int64) error {
	args := m.Called(ctx, careRequestID)
	return args.Error(0)
}

func (m *MockGateway) ListConsentDefinitions(ctx context.Context, careRequestID int64) ([]domain.ConsentDefinition, error) {
	args := m.Called(ctx, careRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ConsentDefinition), args.Error(1)
}

func (m *MockGateway) ListNotes(ctx context.Context, careRequestID int64, kind string) ([]domain.CareRequestNote, error) {
	args := m.Called(ctx, careRequestID, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CareRequestNote), args.Error(1)
}

func (m *MockGateway) CreateNote(ctx context.Context, careRequestID int64, note domain.CareRequestNote) error {
	args := m.Called(ctx, careRequestID, note)
	return args.Error(0)
}

func (m *MockGateway) UpdateNote(ctx context.Context, careRequestID int64, note domain.CareRequestNote) error {
	args := m.Called(ctx, careRequestID, note)
	return args.Error(0)
}

// MockSmsSender mocks the SmsSender interface
type MockSmsSender struct {
	mock.Mock
}

func (m *MockSmsSender) ExecuteFlow(ctx context.Context, flowSID, toNumber string, params map[string]string) error {
	args := m.Called(ctx, flowSID, toNumber, params)
	return args.Error(0)
}

// MockScheduler mocks the ReminderScheduler interface
type MockScheduler struct {
	mock.Mock
}

func (m *MockScheduler) Enqueue(ctx context.Context, careRequestID int64) error {
	args := m.Called(ctx, careRequestID)
	return args.Error(0)
}

func (m *MockScheduler) Cancel(ctx context.Context, careRequestID int64) error {
	args := m.Called(ctx, careRequestID)
	return args.Error(0)
}

func (m *MockScheduler) Reschedule(ctx context.Context, careRequestID int64) error {
	args := m.Called(ctx, careRequestID)
	return args.Error(0)
}

// MockLocker mocks the store.Locker interface
type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Acquire(ctx context.Context, key string, maxWait time.Duration) (store.UnlockFn, error) {
	args := m.Called(ctx, key, maxWait)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(store.UnlockFn), args.Error(1)
}

// recordingEmitter captures emitted events for assertions. It never
// fails.
type recordingEmitter struct {
	mu     sync.Mutex
	events []*events.CompanionEvent
}

func (e *recordingEmitter) EmitEvent(_ context.Context, event *events.CompanionEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *recordingEmitter) byType(eventType string) []*events.CompanionEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var matched []*events.CompanionEvent
	for _, event := range e.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}
