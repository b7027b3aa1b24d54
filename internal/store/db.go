package store

import (
	"context"
	"database/sql"
)

// DBTX abstracts the database access layer. Both *sql.DB and *sql.Tx
// implement it, so store methods can run against a plain connection or
// inside a transaction, whichever the caller holds.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
