package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/phrazzld/companion-api/internal/domain"
)

// JobStore defines the interface for the delayed job queue's control
// plane. Jobs are keyed by deterministic id so cancel/re-enqueue never
// races against a stale entry.
type JobStore interface {
	// Enqueue saves a new pending job, replacing any previous job
	// under the same id that is no longer running, so a completed or
	// failed job never blocks rescheduling. Returns ErrJobExists if a
	// running job holds the id.
	Enqueue(ctx context.Context, job *domain.ScheduledJob) error

	// Get retrieves a job by its id.
	// Returns ErrJobNotFound if no job with that id exists.
	Get(ctx context.Context, jobID string) (*domain.ScheduledJob, error)

	// Delete removes a job by id in any state except running, which is
	// past cancellation. Removing an absent or running job returns
	// ErrJobNotFound; callers implementing idempotent cancel treat
	// that as a no-op.
	Delete(ctx context.Context, jobID string) error

	// ClaimDue atomically marks up to limit pending jobs whose RunAt
	// has passed as running and returns them. A claimed job is
	// invisible to other workers until completed or failed back to
	// pending.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledJob, error)

	// Complete marks a running job as done.
	Complete(ctx context.Context, jobID string) error

	// Fail records a failed attempt. Jobs with attempts remaining
	// return to pending with the given retry delay; exhausted jobs are
	// marked failed and never claimed again.
	Fail(ctx context.Context, jobID string, jobErr string, retryDelay time.Duration) error

	// WithTx returns a new JobStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) JobStore
}
