package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/companion-api/internal/domain"
	"github.com/phrazzld/companion-api/internal/platform/logger"
	"github.com/phrazzld/companion-api/internal/store"
)

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend. Task metadata
// is stored as JSONB and parsed into its typed variant on read.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the TaskStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// CreateBatch implements store.TaskStore.CreateBatch
// It inserts each task with its initial status entries.
func (s *PostgresTaskStore) CreateBatch(ctx context.Context, tasks []*domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	taskQuery := `
		INSERT INTO companion_tasks (id, link_id, type, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	statusQuery := `
		INSERT INTO companion_task_statuses (task_id, name, created_at)
		VALUES ($1, $2, $3)
	`

	for _, task := range tasks {
		metadata, err := domain.MarshalTaskMetadata(task.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for task %s: %w", task.ID, err)
		}

		_, err = s.db.ExecContext(ctx, taskQuery,
			task.ID,
			task.LinkID,
			task.Type,
			metadata,
			task.CreatedAt,
			task.UpdatedAt,
		)
		if err != nil {
			log.Error("failed to create task",
				slog.String("error", err.Error()),
				slog.String("task_id", task.ID.String()),
				slog.String("task_type", string(task.Type)))
			return err
		}

		for _, status := range task.Statuses {
			_, err = s.db.ExecContext(ctx, statusQuery, task.ID, status.Name, status.CreatedAt)
			if err != nil {
				log.Error("failed to create initial task status",
					slog.String("error", err.Error()),
					slog.String("task_id", task.ID.String()))
				return err
			}
		}
	}

	log.Info("tasks created",
		slog.Int("count", len(tasks)))
	return nil
}

// GetByID implements store.TaskStore.GetByID
// Returns store.ErrTaskNotFound if the task does not exist.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, link_id, type, metadata, created_at, updated_at
		FROM companion_tasks
		WHERE id = $1
	`
	task, err := s.scanTask(ctx, s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("task not found", slog.String("task_id", id.String()))
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to get task by ID",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, err
	}

	if err := s.loadStatuses(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// GetByLinkID implements store.TaskStore.GetByLinkID
func (s *PostgresTaskStore) GetByLinkID(ctx context.Context, linkID uuid.UUID) ([]*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, link_id, type, metadata, created_at, updated_at
		FROM companion_tasks
		WHERE link_id = $1
		ORDER BY created_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, linkID)
	if err != nil {
		log.Error("failed to list tasks for link",
			slog.String("error", err.Error()),
			slog.String("link_id", linkID.String()))
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := s.scanTask(ctx, rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, task := range tasks {
		if err := s.loadStatuses(ctx, task); err != nil {
			return nil, err
		}
	}

	return tasks, nil
}

// GetByLinkAndType implements store.TaskStore.GetByLinkAndType
// Returns store.ErrTaskNotFound if no task of that type exists for the link.
func (s *PostgresTaskStore) GetByLinkAndType(
	ctx context.Context,
	linkID uuid.UUID,
	taskType domain.TaskType,
) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, link_id, type, metadata, created_at, updated_at
		FROM companion_tasks
		WHERE link_id = $1 AND type = $2
	`
	task, err := s.scanTask(ctx, s.db.QueryRowContext(ctx, query, linkID, taskType))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("task not found for link",
				slog.String("link_id", linkID.String()),
				slog.String("task_type", string(taskType)))
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to get task by link and type",
			slog.String("error", err.Error()),
			slog.String("link_id", linkID.String()),
			slog.String("task_type", string(taskType)))
		return nil, err
	}

	if err := s.loadStatuses(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// AppendStatus implements store.TaskStore.AppendStatus
func (s *PostgresTaskStore) AppendStatus(
	ctx context.Context,
	taskID uuid.UUID,
	name domain.TaskStatusName,
) (*domain.TaskStatus, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if !domain.IsValidTaskStatus(name) {
		return nil, fmt.Errorf("%w: invalid status %q", domain.ErrInvalidTaskStatus, name)
	}

	query := `
		INSERT INTO companion_task_statuses (task_id, name, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	status := &domain.TaskStatus{
		TaskID:    taskID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	err := s.db.QueryRowContext(ctx, query, taskID, name, status.CreatedAt).Scan(&status.ID)
	if err != nil {
		log.Error("failed to append task status",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()),
			slog.String("status", string(name)))
		return nil, err
	}

	log.Info("task status appended",
		slog.String("task_id", taskID.String()),
		slog.String("status", string(name)))
	return status, nil
}

// UpdateMetadata implements store.TaskStore.UpdateMetadata
// Returns store.ErrTaskNotFound if the task does not exist.
func (s *PostgresTaskStore) UpdateMetadata(
	ctx context.Context,
	taskID uuid.UUID,
	metadata domain.TaskMetadata,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	serialized, err := domain.MarshalTaskMetadata(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata for task %s: %w", taskID, err)
	}

	query := `
		UPDATE companion_tasks
		SET metadata = $2, updated_at = $3
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, taskID, serialized, time.Now().UTC())
	if err != nil {
		log.Error("failed to update task metadata",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()))
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrTaskNotFound
	}

	return nil
}

// WithTx implements store.TaskStore.WithTx
// It returns a new store instance bound to the given transaction.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{
		db:     tx,
		logger: s.logger,
	}
}

// scanner captures the Scan method shared by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (s *PostgresTaskStore) scanTask(ctx context.Context, row scanner) (*domain.Task, error) {
	var task domain.Task
	var taskType string
	var rawMetadata []byte

	err := row.Scan(
		&task.ID,
		&task.LinkID,
		&taskType,
		&rawMetadata,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Type = domain.TaskType(taskType)

	metadata, warnings, err := domain.ParseTaskMetadata(task.Type, rawMetadata)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", task.ID, err)
	}
	log := logger.FromContextOrDefault(ctx, s.logger)
	for _, warning := range warnings {
		log.Warn("dropped malformed task metadata field",
			slog.String("task_id", task.ID.String()),
			slog.String("detail", warning))
	}
	task.Metadata = metadata

	return &task, nil
}

func (s *PostgresTaskStore) loadStatuses(ctx context.Context, task *domain.Task) error {
	query := `
		SELECT id, task_id, name, created_at
		FROM companion_task_statuses
		WHERE task_id = $1
		ORDER BY created_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, task.ID)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	task.Statuses = nil
	for rows.Next() {
		var status domain.TaskStatus
		var name string
		if err := rows.Scan(&status.ID, &status.TaskID, &name, &status.CreatedAt); err != nil {
			return err
		}
		status.Name = domain.TaskStatusName(name)
		task.Statuses = append(task.Statuses, status)
	}
	return rows.Err()
}
