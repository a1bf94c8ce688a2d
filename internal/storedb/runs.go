package storedb

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/erhathaway/ocean/internal/oceantypes"
)

const runColumns = `run_id, session_id, clog_id, status, state, locked_by, lock_expires_at,
	attempt, max_attempts, wake_at, pending_input, last_error, created_ts, updated_ts`

// InsertRun persists a brand-new run row.
func InsertRun(ctx context.Context, q Querier, r oceantypes.Run) error {
	_, err := q.ExecContext(ctx, `INSERT INTO runs (`+runColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.RunID, r.SessionID, r.ClogID, string(r.Status), nullRaw(r.State),
		nullStr(r.LockedBy), nullI64(r.LockExpiresAt),
		r.Attempt, r.MaxAttempts, nullI64(r.WakeAt), nullRaw(r.PendingInput), nullStr(r.LastError),
		r.CreatedTs, r.UpdatedTs,
	)
	return err
}

// GetRun reads a single run row, or (nil, nil) if absent.
func GetRun(ctx context.Context, q Querier, runID string) (*oceantypes.Run, error) {
	row := q.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*oceantypes.Run, error) {
	var (
		r             oceantypes.Run
		status        string
		state         sql.NullString
		lockedBy      sql.NullString
		lockExpiresAt sql.NullInt64
		wakeAt        sql.NullInt64
		pendingInput  sql.NullString
		lastError     sql.NullString
	)
	if err := row.Scan(
		&r.RunID, &r.SessionID, &r.ClogID, &status, &state, &lockedBy, &lockExpiresAt,
		&r.Attempt, &r.MaxAttempts, &wakeAt, &pendingInput, &lastError,
		&r.CreatedTs, &r.UpdatedTs,
	); err != nil {
		return nil, err
	}
	r.Status = oceantypes.Status(status)
	if state.Valid {
		r.State = json.RawMessage(state.String)
	}
	if lockedBy.Valid {
		v := lockedBy.String
		r.LockedBy = &v
	}
	if lockExpiresAt.Valid {
		v := lockExpiresAt.Int64
		r.LockExpiresAt = &v
	}
	if wakeAt.Valid {
		v := wakeAt.Int64
		r.WakeAt = &v
	}
	if pendingInput.Valid {
		r.PendingInput = json.RawMessage(pendingInput.String)
	}
	if lastError.Valid {
		v := lastError.String
		r.LastError = &v
	}
	return &r, nil
}

// ScanRun scans a row shaped like runColumns (e.g. the RETURNING clause
// of an UPDATE) into a Run. Exported for runstore's atomic acquire.
func ScanRun(row rowScanner) (*oceantypes.Run, error) {
	return scanRun(row)
}

// DeleteRun cascades to ticks and run/tick storage via FK.
func DeleteRun(ctx context.Context, q Querier, runID string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID)
	return err
}

func nullStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullI64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullRaw(v json.RawMessage) any {
	if v == nil {
		return nil
	}
	return string(v)
}
