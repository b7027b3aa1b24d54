package store

import (
	"context"
	"strconv"
	"time"
)

// UnlockFn releases a previously acquired lock. It must be called
// exactly once, typically in a defer, regardless of handler outcome.
type UnlockFn func(ctx context.Context)

// Locker provides mutual exclusion scoped to a string key. Locks are
// distributed: two processes acquiring the same key serialize, while
// different keys proceed in parallel.
type Locker interface {
	// Acquire obtains the lock for key, waiting up to maxWait.
	// Returns ErrLockUnavailable if the lock could not be obtained
	// within the bounded wait.
	Acquire(ctx context.Context, key string, maxWait time.Duration) (UnlockFn, error)
}

// WebhookLockKey builds the mutual-exclusion key serializing webhook
// handling for one care request.
func WebhookLockKey(careRequestID int64) string {
	return "webhook:" + strconv.FormatInt(careRequestID, 10)
}
