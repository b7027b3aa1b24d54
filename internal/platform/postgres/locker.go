package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/phrazzld/companion-api/internal/platform/logger"
	"github.com/phrazzld/companion-api/internal/store"
)

// unlockTimeout bounds the release query so a wedged database cannot
// hold the unlock goroutine forever.
const unlockTimeout = 5 * time.Second

// AdvisoryLocker implements store.Locker on top of PostgreSQL
// session-level advisory locks. The lock key string is hashed to the
// 64-bit key space pg_advisory_lock operates on; the session holding
// the lock is pinned to a dedicated connection until release.
type AdvisoryLocker struct {
	db           *sql.DB
	logger       *slog.Logger
	pollInterval time.Duration
}

// NewAdvisoryLocker creates a Locker backed by the given database.
// If logger is nil, a default logger will be used.
func NewAdvisoryLocker(db *sql.DB, logger *slog.Logger) *AdvisoryLocker {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &AdvisoryLocker{
		db:           db,
		logger:       logger.With(slog.String("component", "advisory_locker")),
		pollInterval: 50 * time.Millisecond,
	}
}

// Ensure AdvisoryLocker implements store.Locker interface
var _ store.Locker = (*AdvisoryLocker)(nil)

// Acquire implements store.Locker.Acquire
// It polls pg_try_advisory_lock until it succeeds or maxWait elapses,
// then returns an unlock function bound to the same session.
func (l *AdvisoryLocker) Acquire(ctx context.Context, key string, maxWait time.Duration) (store.UnlockFn, error) {
	log := logger.FromContextOrDefault(ctx, l.logger)
	lockID := hashLockKey(key)

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain connection for lock: %w", err)
	}

	deadline := time.Now().Add(maxWait)
	for {
		var acquired bool
		err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to try advisory lock: %w", err)
		}

		if acquired {
			log.Debug("lock acquired",
				slog.String("key", key),
				slog.Int64("lock_id", lockID))
			return l.unlockFn(conn, key, lockID), nil
		}

		if time.Now().After(deadline) {
			_ = conn.Close()
			log.Warn("lock acquisition timed out",
				slog.String("key", key),
				slog.Duration("max_wait", maxWait))
			return nil, store.ErrLockUnavailable
		}

		select {
		case <-ctx.Done():
			_ = conn.Close()
			return nil, ctx.Err()
		case <-time.After(l.pollInterval):
		}
	}
}

func (l *AdvisoryLocker) unlockFn(conn *sql.Conn, key string, lockID int64) store.UnlockFn {
	return func(ctx context.Context) {
		// The release must outlive the request: a deferred unlock often
		// runs after the caller's context is already canceled, and the
		// session-level lock would otherwise follow the connection back
		// to the pool and never be released.
		unlockCtx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()

		var released bool
		err := conn.QueryRowContext(unlockCtx, `SELECT pg_advisory_unlock($1)`, lockID).Scan(&released)
		if err != nil {
			l.logger.Error("failed to release advisory lock, discarding connection",
				slog.String("error", err.Error()),
				slog.String("key", key))
			// Pooling a session that still holds the lock would wedge
			// every later acquire on this key, so force the pool to
			// drop the underlying connection.
			_ = conn.Raw(func(driverConn any) error { return driver.ErrBadConn })
			_ = conn.Close()
			return
		}
		if !released {
			l.logger.Error("advisory lock was not held at release",
				slog.String("key", key))
		}
		_ = conn.Close()
	}
}

// hashLockKey maps a lock key string onto the signed 64-bit key space
// advisory locks use. FNV-1a keeps the mapping stable across
// processes and releases.
func hashLockKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}
