// Package storedb implements the typed CRUD layer over the seven
// tables in internal/schema. Every value at rest is an opaque JSON
// blob (json.RawMessage), never introspected here; this package only
// moves bytes in and out of columns. Higher-level correctness — RBW
// enforcement, atomic locking, outcome application — lives in
// runstore, tickstore, eventlog, and scheduler.
package storedb

import (
	"context"
	"database/sql"
)

// Querier is satisfied by both *sql.DB and *sql.Tx, so every function in
// this package can run standalone or inside write_scoped's single
// transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
