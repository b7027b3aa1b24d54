package jobs

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/companion-api/internal/domain"
	"github.com/phrazzld/companion-api/internal/store"
	"github.com/stretchr/testify/mock"
)

// MockJobStore mocks the store.JobStore interface
type MockJobStore struct {
	mock.Mock
}

func (m *MockJobStore) Enqueue(ctx context.Context, job *domain.ScheduledJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobStore) Get(ctx context.Context, jobID string) (*domain.ScheduledJob, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ScheduledJob), args.Error(1)
}

func (m *MockJobStore) Delete(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockJobStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledJob, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ScheduledJob), args.Error(1)
}

func (m *MockJobStore) Complete(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockJobStore) Fail(ctx context.Context, jobID string, jobErr string, retryDelay time.Duration) error {
	args := m.Called(ctx, jobID, jobErr, retryDelay)
	return args.Error(0)
}

func (m *MockJobStore) WithTx(tx *sql.Tx) store.JobStore {
	args := m.Called(tx)
	return args.Get(0).(store.JobStore)
}

// MockCareRequests mocks the CareRequestClient interface
type MockCareRequests struct {
	mock.Mock
}

func (m *MockCareRequests) GetCareRequest(ctx context.Context, careRequestID int64) (*domain.CareRequestSnapshot, error) {
	args := m.Called(ctx, careRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CareRequestSnapshot), args.Error(1)
}

func (m *MockCareRequests) CreateNote(ctx context.Context, careRequestID int64, note domain.CareRequestNote) error {
	args := m.Called(ctx, careRequestID, note)
	return args.Error(0)
}

// MockFlowExecutor mocks the FlowExecutor interface
type MockFlowExecutor struct {
	mock.Mock
}

func (m *MockFlowExecutor) ExecuteFlow(ctx context.Context, flowSID, toNumber string, params map[string]string) error {
	args := m.Called(ctx, flowSID, toNumber, params)
	return args.Error(0)
}

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
