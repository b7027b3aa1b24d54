package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/companion-api/internal/domain"
	"github.com/phrazzld/companion-api/internal/platform/logger"
	"github.com/phrazzld/companion-api/internal/store"
)

// PostgresJobStore implements the store.JobStore interface using a
// PostgreSQL table as the delayed-queue backing store. Claiming uses
// FOR UPDATE SKIP LOCKED so concurrent workers never double-run a job.
type PostgresJobStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresJobStore creates a new PostgreSQL implementation of the JobStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresJobStore(db store.DBTX, logger *slog.Logger) *PostgresJobStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresJobStore{
		db:     db,
		logger: logger.With(slog.String("component", "job_store")),
	}
}

// Ensure PostgresJobStore implements store.JobStore interface
var _ store.JobStore = (*PostgresJobStore)(nil)

// Enqueue implements store.JobStore.Enqueue
// A previous job under the same id that is no longer running is
// replaced wholesale, so completed and failed rows never block a later
// reschedule. Returns store.ErrJobExists if a running job holds the id.
func (s *PostgresJobStore) Enqueue(ctx context.Context, job *domain.ScheduledJob) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO scheduled_jobs (
			id, queue, care_request_id, run_at, status,
			attempts, max_attempts, last_error, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			queue = EXCLUDED.queue,
			care_request_id = EXCLUDED.care_request_id,
			run_at = EXCLUDED.run_at,
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			max_attempts = EXCLUDED.max_attempts,
			last_error = EXCLUDED.last_error,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at
		WHERE scheduled_jobs.status <> $11
	`
	result, err := s.db.ExecContext(
		ctx,
		query,
		job.ID,
		job.Queue,
		job.CareRequestID,
		job.RunAt,
		job.Status,
		job.Attempts,
		job.MaxAttempts,
		job.LastError,
		job.CreatedAt,
		job.UpdatedAt,
		domain.JobStatusRunning,
	)
	if err != nil {
		log.Error("failed to enqueue job",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID))
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		log.Debug("job currently running, not replaced",
			slog.String("job_id", job.ID))
		return store.ErrJobExists
	}

	log.Info("job enqueued",
		slog.String("job_id", job.ID),
		slog.Time("run_at", job.RunAt))
	return nil
}

// Get implements store.JobStore.Get
// Returns store.ErrJobNotFound if no job with the given id exists.
func (s *PostgresJobStore) Get(ctx context.Context, jobID string) (*domain.ScheduledJob, error) {
	query := `
		SELECT id, queue, care_request_id, run_at, status,
			attempts, max_attempts, last_error, created_at, updated_at
		FROM scheduled_jobs
		WHERE id = $1
	`
	var job domain.ScheduledJob
	var status string
	err := s.db.QueryRowContext(ctx, query, jobID).Scan(
		&job.ID,
		&job.Queue,
		&job.CareRequestID,
		&job.RunAt,
		&status,
		&job.Attempts,
		&job.MaxAttempts,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	return &job, nil
}

// Delete implements store.JobStore.Delete
// Removes the row whatever its state, except running: a running job has
// already been claimed by a worker and is past cancellation. Terminal
// rows are purged too, freeing the id for a later Enqueue.
func (s *PostgresJobStore) Delete(ctx context.Context, jobID string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `DELETE FROM scheduled_jobs WHERE id = $1 AND status <> $2`
	result, err := s.db.ExecContext(ctx, query, jobID, domain.JobStatusRunning)
	if err != nil {
		log.Error("failed to delete job",
			slog.String("error", err.Error()),
			slog.String("job_id", jobID))
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrJobNotFound
	}

	log.Info("job removed", slog.String("job_id", jobID))
	return nil
}

// ClaimDue implements store.JobStore.ClaimDue
func (s *PostgresJobStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledJob, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE scheduled_jobs
		SET status = $1, attempts = attempts + 1, updated_at = $2
		WHERE id IN (
			SELECT id FROM scheduled_jobs
			WHERE status = $3 AND run_at <= $2
			ORDER BY run_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, queue, care_request_id, run_at, status,
			attempts, max_attempts, last_error, created_at, updated_at
	`
	rows, err := s.db.QueryContext(ctx, query,
		domain.JobStatusRunning, now, domain.JobStatusPending, limit)
	if err != nil {
		log.Error("failed to claim due jobs", slog.String("error", err.Error()))
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.ScheduledJob
	for rows.Next() {
		var job domain.ScheduledJob
		var status string
		err := rows.Scan(
			&job.ID,
			&job.Queue,
			&job.CareRequestID,
			&job.RunAt,
			&status,
			&job.Attempts,
			&job.MaxAttempts,
			&job.LastError,
			&job.CreatedAt,
			&job.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		job.Status = domain.JobStatus(status)
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

// Complete implements store.JobStore.Complete
func (s *PostgresJobStore) Complete(ctx context.Context, jobID string) error {
	query := `UPDATE scheduled_jobs SET status = $2, updated_at = $3 WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, jobID, domain.JobStatusDone, time.Now().UTC())
	return err
}

// Fail implements store.JobStore.Fail
func (s *PostgresJobStore) Fail(ctx context.Context, jobID string, jobErr string, retryDelay time.Duration) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	// Jobs with attempts remaining go back to pending with a delayed
	// run_at; exhausted jobs are parked as failed.
	query := `
		UPDATE scheduled_jobs
		SET status = CASE WHEN attempts >= max_attempts THEN $2 ELSE $3 END,
			run_at = CASE WHEN attempts >= max_attempts THEN run_at ELSE $4 END,
			last_error = $5,
			updated_at = $6
		WHERE id = $1
	`
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query,
		jobID,
		domain.JobStatusFailed,
		domain.JobStatusPending,
		now.Add(retryDelay),
		jobErr,
		now,
	)
	if err != nil {
		log.Error("failed to record job failure",
			slog.String("error", err.Error()),
			slog.String("job_id", jobID))
		return err
	}

	log.Warn("job attempt failed",
		slog.String("job_id", jobID),
		slog.String("job_error", jobErr))
	return nil
}

// WithTx implements store.JobStore.WithTx
// It returns a new store instance bound to the given transaction.
func (s *PostgresJobStore) WithTx(tx *sql.Tx) store.JobStore {
	return &PostgresJobStore{
		db:     tx,
		logger: s.logger,
	}
}
