package storedb

import "context"

// EnsureSession creates the session row if it does not already exist.
// Sessions are created lazily on first run (spec §3, Session lifecycle).
func EnsureSession(ctx context.Context, q Querier, sessionID string, nowMs int64) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO ocean_sessions (session_id, created_ts) VALUES (?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		sessionID, nowMs,
	)
	return err
}

// DeleteSession cascades to runs, ticks, run/tick storage (via runs),
// and session storage, per the FK topology in internal/schema.
func DeleteSession(ctx context.Context, q Querier, sessionID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM ocean_sessions WHERE session_id = ?`, sessionID)
	return err
}
