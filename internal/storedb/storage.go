package storedb

import (
	"context"
	"database/sql"
	"encoding/json"
)

// GetGlobal reads the per-adapter singleton row, or nil if unset.
func GetGlobal(ctx context.Context, q Querier, clogID string) (json.RawMessage, error) {
	var v sql.NullString
	err := q.QueryRowContext(ctx, `SELECT value FROM ocean_storage_global WHERE clog_id = ?`, clogID).Scan(&v)
	return rawOrNil(v, err)
}

// SetGlobal upserts the per-adapter singleton row.
func SetGlobal(ctx context.Context, q Querier, clogID string, value json.RawMessage, nowMs int64) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO ocean_storage_global (clog_id, value, updated_ts) VALUES (?, ?, ?)
		 ON CONFLICT(clog_id) DO UPDATE SET value = excluded.value, updated_ts = excluded.updated_ts`,
		clogID, string(value), nowMs,
	)
	return err
}

// ClearGlobal deletes the per-adapter singleton row.
func ClearGlobal(ctx context.Context, q Querier, clogID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM ocean_storage_global WHERE clog_id = ?`, clogID)
	return err
}

// GetSession reads the per-(adapter,session) singleton row, or nil if unset.
func GetSession(ctx context.Context, q Querier, clogID, sessionID string) (json.RawMessage, error) {
	var v sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT value FROM ocean_storage_session WHERE clog_id = ? AND session_id = ?`,
		clogID, sessionID,
	).Scan(&v)
	return rawOrNil(v, err)
}

// SetSession upserts the per-(adapter,session) singleton row.
func SetSession(ctx context.Context, q Querier, clogID, sessionID string, value json.RawMessage, nowMs int64) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO ocean_storage_session (clog_id, session_id, value, updated_ts) VALUES (?, ?, ?, ?)
		 ON CONFLICT(clog_id, session_id) DO UPDATE SET value = excluded.value, updated_ts = excluded.updated_ts`,
		clogID, sessionID, string(value), nowMs,
	)
	return err
}

// ClearSession deletes the per-(adapter,session) singleton row.
func ClearSession(ctx context.Context, q Querier, clogID, sessionID string) error {
	_, err := q.ExecContext(ctx,
		`DELETE FROM ocean_storage_session WHERE clog_id = ? AND session_id = ?`, clogID, sessionID,
	)
	return err
}

// GetRunStorage reads the per-(adapter,run) singleton row, or nil if unset.
func GetRunStorage(ctx context.Context, q Querier, clogID, runID string) (json.RawMessage, error) {
	var v sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT value FROM ocean_storage_run WHERE clog_id = ? AND run_id = ?`, clogID, runID,
	).Scan(&v)
	return rawOrNil(v, err)
}

// SetRunStorage upserts the per-(adapter,run) singleton row.
func SetRunStorage(ctx context.Context, q Querier, clogID, runID string, value json.RawMessage, nowMs int64) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO ocean_storage_run (clog_id, run_id, value, updated_ts) VALUES (?, ?, ?, ?)
		 ON CONFLICT(clog_id, run_id) DO UPDATE SET value = excluded.value, updated_ts = excluded.updated_ts`,
		clogID, runID, string(value), nowMs,
	)
	return err
}

// ClearRunStorage deletes the per-(adapter,run) singleton row.
func ClearRunStorage(ctx context.Context, q Querier, clogID, runID string) error {
	_, err := q.ExecContext(ctx,
		`DELETE FROM ocean_storage_run WHERE clog_id = ? AND run_id = ?`, clogID, runID,
	)
	return err
}

// TickRow is one keyed row of tick-scoped storage.
type TickRow struct {
	RowID     string
	Value     json.RawMessage
	UpdatedTs int64
}

// GetTickRows reads the requested rowIds (or all rows, if rowIds is
// empty) for one (clogId, runId, tickId).
func GetTickRows(ctx context.Context, q Querier, clogID, runID, tickID string, rowIDs []string) ([]TickRow, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if len(rowIDs) == 0 {
		rows, err = q.QueryContext(ctx,
			`SELECT row_id, value, updated_ts FROM ocean_storage_tick
			 WHERE clog_id = ? AND run_id = ? AND tick_id = ? ORDER BY row_id`,
			clogID, runID, tickID,
		)
	} else {
		query, args := inClause(
			`SELECT row_id, value, updated_ts FROM ocean_storage_tick
			 WHERE clog_id = ? AND run_id = ? AND tick_id = ? AND row_id IN (`,
			[]any{clogID, runID, tickID}, rowIDs,
		)
		rows, err = q.QueryContext(ctx, query+`) ORDER BY row_id`, args...)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TickRow
	for rows.Next() {
		var (
			rowID     string
			value     sql.NullString
			updatedTs int64
		)
		if err := rows.Scan(&rowID, &value, &updatedTs); err != nil {
			return nil, err
		}
		tr := TickRow{RowID: rowID, UpdatedTs: updatedTs}
		if value.Valid {
			tr.Value = json.RawMessage(value.String)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// SetTickRow upserts one tick-scoped row.
func SetTickRow(ctx context.Context, q Querier, clogID, runID, tickID, rowID string, value json.RawMessage, nowMs int64) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO ocean_storage_tick (clog_id, run_id, tick_id, row_id, value, updated_ts) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(clog_id, run_id, tick_id, row_id) DO UPDATE SET value = excluded.value, updated_ts = excluded.updated_ts`,
		clogID, runID, tickID, rowID, string(value), nowMs,
	)
	return err
}

// DelTickRow deletes one tick-scoped row.
func DelTickRow(ctx context.Context, q Querier, clogID, runID, tickID, rowID string) error {
	_, err := q.ExecContext(ctx,
		`DELETE FROM ocean_storage_tick WHERE clog_id = ? AND run_id = ? AND tick_id = ? AND row_id = ?`,
		clogID, runID, tickID, rowID,
	)
	return err
}

// HistoryTick is one tick's worth of history-read output.
type HistoryTick struct {
	TickID    string
	UpdatedTs int64
	Rows      []TickRow
}

// HistoryTicksForRun returns up to limitTicks distinct tick ids for
// (clogId, runId), ordered by most-recent-update, each with the
// requested rowIds (or all rows, if unspecified) and the tick's latest
// updated_ts. Read-only: callers must not record this into an RBW
// ledger (spec §4.3, "the history plan ... unlocks nothing").
func HistoryTicksForRun(ctx context.Context, q Querier, clogID, runID string, rowIDs []string, limitTicks int, descending bool) ([]HistoryTick, error) {
	if limitTicks <= 0 {
		limitTicks = 20
	}
	order := "DESC"
	if !descending {
		order = "ASC"
	}
	rows, err := q.QueryContext(ctx,
		`SELECT tick_id, MAX(updated_ts) AS latest FROM ocean_storage_tick
		 WHERE clog_id = ? AND run_id = ? GROUP BY tick_id ORDER BY latest `+order+` LIMIT ?`,
		clogID, runID, limitTicks,
	)
	if err != nil {
		return nil, err
	}
	var ticks []HistoryTick
	for rows.Next() {
		var ht HistoryTick
		if err := rows.Scan(&ht.TickID, &ht.UpdatedTs); err != nil {
			rows.Close()
			return nil, err
		}
		ticks = append(ticks, ht)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range ticks {
		trs, err := GetTickRows(ctx, q, clogID, runID, ticks[i].TickID, rowIDs)
		if err != nil {
			return nil, err
		}
		ticks[i].Rows = trs
	}
	return ticks, nil
}

func rawOrNil(v sql.NullString, err error) (json.RawMessage, error) {
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		return nil, nil
	}
	return json.RawMessage(v.String), nil
}

// inClause appends a placeholder list for vals to query, returning the
// combined query fragment (missing the closing paren — callers append
// it) and the combined arg slice.
func inClause(query string, baseArgs []any, vals []string) (string, []any) {
	args := make([]any, 0, len(baseArgs)+len(vals))
	args = append(args, baseArgs...)
	for i, v := range vals {
		if i > 0 {
			query += ","
		}
		query += "?"
		args = append(args, v)
	}
	return query, args
}
