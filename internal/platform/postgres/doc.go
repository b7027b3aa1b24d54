// Package postgres provides the PostgreSQL implementations of the storage
// interfaces defined in internal/store, covering companion links, tasks
// with their status history, the scheduled job queue, and the
// advisory-lock based Locker.
package postgres
