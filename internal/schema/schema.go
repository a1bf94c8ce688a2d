// Package schema owns the durable schema contract: seven tables, column
// names bit-exact per the spec, with cascade foreign keys wired so that
// Session -> Run -> Tick -> TickStorage, Session -> SessionStorage, and
// Run -> RunStorage all clean up on delete without application-level
// emulation. Every opaque value (state, pending_input, payload) is
// stored as a TEXT column holding raw JSON bytes verbatim: no
// normalization, no re-encoding, so structural equality survives a
// round trip.
package schema

import (
	"context"
	"database/sql"
	"fmt"
)

const ddl = `
CREATE TABLE IF NOT EXISTS ocean_sessions (
	session_id TEXT PRIMARY KEY,
	created_ts INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES ocean_sessions(session_id) ON DELETE CASCADE,
	clog_id TEXT NOT NULL,
	status TEXT NOT NULL,
	state TEXT,
	locked_by TEXT,
	lock_expires_at INTEGER,
	attempt INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 3,
	wake_at INTEGER,
	pending_input TEXT,
	last_error TEXT,
	created_ts INTEGER NOT NULL,
	updated_ts INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id);
CREATE INDEX IF NOT EXISTS idx_runs_eligible ON runs(status, wake_at);

CREATE TABLE IF NOT EXISTS ocean_ticks (
	run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	tick_id TEXT NOT NULL,
	created_ts INTEGER NOT NULL,
	PRIMARY KEY (run_id, tick_id)
);

CREATE TABLE IF NOT EXISTS ocean_storage_global (
	clog_id TEXT PRIMARY KEY,
	value TEXT,
	updated_ts INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS ocean_storage_session (
	clog_id TEXT NOT NULL,
	session_id TEXT NOT NULL REFERENCES ocean_sessions(session_id) ON DELETE CASCADE,
	value TEXT,
	updated_ts INTEGER NOT NULL,
	PRIMARY KEY (clog_id, session_id)
);

CREATE TABLE IF NOT EXISTS ocean_storage_run (
	clog_id TEXT NOT NULL,
	run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	value TEXT,
	updated_ts INTEGER NOT NULL,
	PRIMARY KEY (clog_id, run_id)
);

CREATE TABLE IF NOT EXISTS ocean_storage_tick (
	clog_id TEXT NOT NULL,
	run_id TEXT NOT NULL,
	tick_id TEXT NOT NULL,
	row_id TEXT NOT NULL,
	value TEXT,
	updated_ts INTEGER NOT NULL,
	PRIMARY KEY (clog_id, run_id, tick_id, row_id),
	FOREIGN KEY (run_id, tick_id) REFERENCES ocean_ticks(run_id, tick_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	ts INTEGER NOT NULL,
	scope_kind TEXT NOT NULL,
	session_id TEXT,
	run_id TEXT,
	tick_id TEXT,
	type TEXT NOT NULL,
	payload TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);
CREATE INDEX IF NOT EXISTS idx_events_run_seq ON events(run_id, seq);
CREATE INDEX IF NOT EXISTS idx_events_session_seq ON events(session_id, seq);
`

// Migrate applies the schema. It is idempotent: every statement is
// CREATE ... IF NOT EXISTS, so repeated calls (e.g. at the top of every
// process's startup) are cheap no-ops after the first.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("schema: migrate: %w", err)
	}
	return nil
}

// EnableForeignKeys turns on per-connection foreign key enforcement,
// required by SQLite-family databases (the server does not enforce FKs
// by default; the pragma is scoped to the connection that issues it).
// Callers using a pooled *sql.DB should set this via the driver's DSN
// (e.g. "file:x.db?_pragma=foreign_keys(1)") or a ConnectHook, since a
// pragma issued on one pooled connection does not apply to others.
func EnableForeignKeys(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`)
	return err
}
