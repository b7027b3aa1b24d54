package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/companion-api/internal/domain"
)

// TaskStore defines the interface for companion task persistence,
// including the append-only status history.
type TaskStore interface {
	// CreateBatch saves a set of new tasks, typically the full task
	// list for a freshly created link, together with their initial
	// status entries.
	CreateBatch(ctx context.Context, tasks []*domain.Task) error

	// GetByID retrieves a task by its unique ID, with its full status
	// history loaded. Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// GetByLinkID retrieves all tasks for a link, each with its full
	// status history loaded, ordered by creation time.
	GetByLinkID(ctx context.Context, linkID uuid.UUID) ([]*domain.Task, error)

	// GetByLinkAndType retrieves the single task of the given type for
	// a link. Returns ErrTaskNotFound if it does not exist.
	GetByLinkAndType(ctx context.Context, linkID uuid.UUID, taskType domain.TaskType) (*domain.Task, error)

	// AppendStatus adds a new entry to a task's status history.
	// Callers are responsible for only appending when the name differs
	// from the current active status.
	AppendStatus(ctx context.Context, taskID uuid.UUID, name domain.TaskStatusName) (*domain.TaskStatus, error)

	// UpdateMetadata replaces a task's metadata.
	// Returns ErrTaskNotFound if the task does not exist.
	UpdateMetadata(ctx context.Context, taskID uuid.UUID, metadata domain.TaskMetadata) error

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) TaskStore
}
