package storedb

import (
	"context"
	"database/sql"
)

// InsertTickIgnore creates the tick entity at most once per (runId,
// tickId) — an insert-or-ignore, per spec §4.2.
func InsertTickIgnore(ctx context.Context, q Querier, runID, tickID string, nowMs int64) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO ocean_ticks (run_id, tick_id, created_ts) VALUES (?, ?, ?)
		 ON CONFLICT(run_id, tick_id) DO NOTHING`,
		runID, tickID, nowMs,
	)
	return err
}

// DeleteTick removes the tick entity, cascading to its TickStorage rows.
func DeleteTick(ctx context.Context, q Querier, runID, tickID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM ocean_ticks WHERE run_id = ? AND tick_id = ?`, runID, tickID)
	return err
}

// TickExists reports whether the tick entity was ever created.
func TickExists(ctx context.Context, q Querier, runID, tickID string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM ocean_ticks WHERE run_id = ? AND tick_id = ?`, runID, tickID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
