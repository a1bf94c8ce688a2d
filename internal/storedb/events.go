package storedb

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/erhathaway/ocean/internal/oceantypes"
)

// InsertEvent appends one row; seq is assigned by the database
// (AUTOINCREMENT), which is what guarantees the strictly-increasing
// total order required by spec §3 and §8.
func InsertEvent(ctx context.Context, q Querier, e oceantypes.Event) (seq int64, err error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO events (id, ts, scope_kind, session_id, run_id, tick_id, type, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Ts, string(e.ScopeKind), nullStr(e.SessionID), nullStr(e.RunID), nullStr(e.TickID),
		e.Type, nullRaw(e.Payload),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ReadByScope returns events with seq > afterSeq, filtered by scope,
// ordered by seq ascending, capped at limit (100 if limit <= 0). Only
// global, session and run scopes filter; any other scope (including
// tick) returns events of every scope.
func ReadByScope(ctx context.Context, q Querier, scope oceantypes.ScopeKind, sessionID, runID string, afterSeq int64, limit int) ([]oceantypes.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	var (
		rows *sql.Rows
		err  error
	)
	switch scope {
	case oceantypes.ScopeGlobal:
		rows, err = q.QueryContext(ctx,
			`SELECT seq, id, ts, scope_kind, session_id, run_id, tick_id, type, payload FROM events
			 WHERE scope_kind = 'global' AND seq > ? ORDER BY seq ASC LIMIT ?`,
			afterSeq, limit,
		)
	case oceantypes.ScopeSession:
		rows, err = q.QueryContext(ctx,
			`SELECT seq, id, ts, scope_kind, session_id, run_id, tick_id, type, payload FROM events
			 WHERE session_id = ? AND seq > ? ORDER BY seq ASC LIMIT ?`,
			sessionID, afterSeq, limit,
		)
	case oceantypes.ScopeRun:
		rows, err = q.QueryContext(ctx,
			`SELECT seq, id, ts, scope_kind, session_id, run_id, tick_id, type, payload FROM events
			 WHERE run_id = ? AND seq > ? ORDER BY seq ASC LIMIT ?`,
			runID, afterSeq, limit,
		)
	default:
		rows, err = q.QueryContext(ctx,
			`SELECT seq, id, ts, scope_kind, session_id, run_id, tick_id, type, payload FROM events
			 WHERE seq > ? ORDER BY seq ASC LIMIT ?`,
			afterSeq, limit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []oceantypes.Event
	for rows.Next() {
		var (
			ev        oceantypes.Event
			scopeKind string
			sess      sql.NullString
			rid       sql.NullString
			tid       sql.NullString
			payload   sql.NullString
		)
		if err := rows.Scan(&ev.Seq, &ev.ID, &ev.Ts, &scopeKind, &sess, &rid, &tid, &ev.Type, &payload); err != nil {
			return nil, err
		}
		ev.ScopeKind = oceantypes.ScopeKind(scopeKind)
		if sess.Valid {
			v := sess.String
			ev.SessionID = &v
		}
		if rid.Valid {
			v := rid.String
			ev.RunID = &v
		}
		if tid.Valid {
			v := tid.String
			ev.TickID = &v
		}
		if payload.Valid {
			ev.Payload = json.RawMessage(payload.String)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// GCByTTL deletes all rows older than the cutoff (ts < cutoffMs).
func GCByTTL(ctx context.Context, q Querier, cutoffMs int64) (int64, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM events WHERE ts < ?`, cutoffMs)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
