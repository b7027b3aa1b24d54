package postgres

import (
	"database/sql"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestLinkStoreWithTx tests the WithTx method for the link store
func TestLinkStoreWithTx(t *testing.T) {
	db := &sql.DB{}
	logger := slog.Default()
	store := NewPostgresLinkStore(db, logger)

	tx := &sql.Tx{}

	result := store.WithTx(tx)
	assert.NotNil(t, result)

	resultStore, ok := result.(*PostgresLinkStore)
	assert.True(t, ok, "WithTx should return a PostgresLinkStore instance")
	assert.Equal(t, tx, resultStore.db, "WithTx store should use the provided transaction")
	assert.Equal(t, store.logger, resultStore.logger, "WithTx store should preserve the logger")
}

// TestTaskStoreWithTx tests the WithTx method for the task store
func TestTaskStoreWithTx(t *testing.T) {
	db := &sql.DB{}
	store := NewPostgresTaskStore(db, nil)

	tx := &sql.Tx{}

	result := store.WithTx(tx)
	assert.NotNil(t, result)

	resultStore, ok := result.(*PostgresTaskStore)
	assert.True(t, ok, "WithTx should return a PostgresTaskStore instance")
	assert.Equal(t, tx, resultStore.db)
}

// TestJobStoreWithTx tests the WithTx method for the job store
func TestJobStoreWithTx(t *testing.T) {
	db := &sql.DB{}
	store := NewPostgresJobStore(db, nil)

	tx := &sql.Tx{}

	result := store.WithTx(tx)
	assert.NotNil(t, result)

	resultStore, ok := result.(*PostgresJobStore)
	assert.True(t, ok, "WithTx should return a PostgresJobStore instance")
	assert.Equal(t, tx, resultStore.db)
}

func TestNewStoresPanicOnNilDB(t *testing.T) {
	assert.Panics(t, func() { NewPostgresLinkStore(nil, nil) })
	assert.Panics(t, func() { NewPostgresTaskStore(nil, nil) })
	assert.Panics(t, func() { NewPostgresJobStore(nil, nil) })
	assert.Panics(t, func() { NewAdvisoryLocker(nil, nil) })
}

func TestHashLockKeyIsStable(t *testing.T) {
	first := hashLockKey("webhook:42")
	second := hashLockKey("webhook:42")
	assert.Equal(t, first, second, "hashing the same key must give the same lock id")

	other := hashLockKey("webhook:43")
	assert.NotEqual(t, first, other, "different keys should hash to different lock ids")
}
