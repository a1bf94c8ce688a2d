// Package runstore implements durable run CRUD and the atomic
// primitives the scheduler depends on: conditional-UPDATE locking
// (acquire), and release-with-signal-detection folded into a single
// UPDATE so there is no TOCTOU window between "handler returned" and
// "release persisted" (spec §4.1, §9 "Signal-during-release race").
//
// The run row never literally stores status="active". Per the spec's
// open question on acquire eligibility (§9), this implementation
// adopts resolution (ii): "active" is a derived display value, shown by
// Effective when a lock is currently held and unexpired, while the
// underlying status column keeps whatever non-terminal value it had
// when the lock was taken (pending or waiting). This lets a stale lock
// expire and the same stored status make the row eligible again,
// without a separate reaper.
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/erhathaway/ocean/internal/oceanclock"
	"github.com/erhathaway/ocean/internal/oceantypes"
	"github.com/erhathaway/ocean/internal/storedb"
)

// Store provides run CRUD over a Querier, using clock for all
// timestamps so tests can drive it deterministically.
type Store struct {
	Clock oceanclock.Func
}

// CreateOptions configures CreateRun.
type CreateOptions struct {
	Input        json.RawMessage
	HasInput     bool // distinguishes "input: null" from "input: undefined"
	InitialState json.RawMessage
	MaxAttempts  int
}

// CreateRun creates the session if absent, then a run with attempt=0,
// no lock, and status derived from whether an initial input was
// supplied (spec §4.1, §8 "createRun with input=undefined yields
// status=idle; with any input value (including null) yields
// status=pending").
func (s *Store) CreateRun(ctx context.Context, q storedb.Querier, sessionID, clogID string, opts CreateOptions) (string, error) {
	now := oceanclock.NowMs(s.Clock)
	if err := storedb.EnsureSession(ctx, q, sessionID, now); err != nil {
		return "", fmt.Errorf("runstore: create run: ensure session: %w", err)
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	run := oceantypes.Run{
		RunID:       oceanclock.NewID("run"),
		SessionID:   sessionID,
		ClogID:      clogID,
		Status:      oceantypes.StatusIdle,
		State:       opts.InitialState,
		Attempt:     0,
		MaxAttempts: maxAttempts,
		CreatedTs:   now,
		UpdatedTs:   now,
	}
	if opts.HasInput {
		run.Status = oceantypes.StatusPending
		run.PendingInput = opts.Input
	}

	if err := storedb.InsertRun(ctx, q, run); err != nil {
		return "", fmt.Errorf("runstore: create run: %w", err)
	}
	return run.RunID, nil
}

// GetRun returns the run row, with Status replaced by its externally
// observable value (see package doc).
func (s *Store) GetRun(ctx context.Context, q storedb.Querier, runID string) (*oceantypes.Run, error) {
	r, err := storedb.GetRun(ctx, q, runID)
	if err != nil || r == nil {
		return r, err
	}
	r.Status = Effective(r, oceanclock.NowMs(s.Clock))
	return r, nil
}

// Effective computes the externally-visible status of a raw run row: a
// held, unexpired lock displays as "active" regardless of the stored
// status.
func Effective(r *oceantypes.Run, nowMs int64) oceantypes.Status {
	if r.LockedBy != nil && r.LockExpiresAt != nil && *r.LockExpiresAt > nowMs {
		return oceantypes.StatusActive
	}
	return r.Status
}

// Signal enqueues new input. Non-terminal statuses absorb it (idle and
// waiting flip to pending; active and pending keep their status) and
// pendingInput is overwritten either way. Terminal statuses (done,
// failed) absorb the call silently: neither status nor pendingInput
// changes (spec §4.1).
func (s *Store) Signal(ctx context.Context, q storedb.Querier, runID string, input json.RawMessage) error {
	now := oceanclock.NowMs(s.Clock)
	_, err := q.ExecContext(ctx,
		`UPDATE runs SET
			pending_input = CASE WHEN status IN ('done','failed') THEN pending_input ELSE ? END,
			status        = CASE WHEN status IN ('done','failed') THEN status
			                WHEN status IN ('idle','waiting') THEN 'pending'
			                ELSE status END,
			updated_ts    = CASE WHEN status IN ('done','failed') THEN updated_ts ELSE ? END
		 WHERE run_id = ?`,
		nullableRaw(input), now, runID,
	)
	if err != nil {
		return fmt.Errorf("runstore: signal: %w", err)
	}
	return nil
}

// Acquire atomically selects and locks one eligible run: status=pending,
// or status=waiting with wakeAt<=now; and the existing lock (if any) is
// null or expired. The eligibility check and the lock write happen in
// one UPDATE...RETURNING statement, so two concurrent acquirers cannot
// both win (spec §4.1, §9 "Durable single-lock discipline"). Returns nil
// if no run was eligible.
func (s *Store) Acquire(ctx context.Context, q storedb.Querier, instanceID string, lockMs int64) (*oceantypes.Run, error) {
	now := oceanclock.NowMs(s.Clock)
	expiresAt := now + lockMs

	const query = `
		UPDATE runs
		SET locked_by = ?, lock_expires_at = ?, updated_ts = ?
		WHERE run_id = (
			SELECT run_id FROM runs
			WHERE status NOT IN ('done','failed')
			  AND (status = 'pending' OR (status = 'waiting' AND wake_at <= ?))
			  AND (locked_by IS NULL OR lock_expires_at <= ?)
			ORDER BY updated_ts ASC
			LIMIT 1
		)
		AND status NOT IN ('done','failed')
		AND (status = 'pending' OR (status = 'waiting' AND wake_at <= ?))
		AND (locked_by IS NULL OR lock_expires_at <= ?)
		RETURNING ` + runColumnsForReturning

	row := q.QueryRowContext(ctx, query, instanceID, expiresAt, now, now, now, now, now)
	r, err := storedb.ScanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("runstore: acquire: %w", err)
	}
	return r, nil
}

// ConsumePendingInput nulls out pendingInput immediately after acquire,
// so that any signal arriving during handler execution is detectable at
// release time by pendingInput being non-null again (spec §4.1, §4.6
// step 2).
func (s *Store) ConsumePendingInput(ctx context.Context, q storedb.Querier, runID string) error {
	_, err := q.ExecContext(ctx, `UPDATE runs SET pending_input = NULL WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("runstore: consume pending input: %w", err)
	}
	return nil
}

// Patch is the caller-supplied release outcome, applied only when no
// signal arrived during the tick (see Release).
type Patch struct {
	Status       oceantypes.Status
	Attempt      int
	WakeAt       *int64
	LastError    *string
	PendingInput json.RawMessage
	HasPending   bool // whether PendingInput should be written (vs left null)
}

// Release applies patch, folding in signal-detection atomically: if
// pendingInput is non-null at the moment of the UPDATE (a signal landed
// during the tick), the row moves to pending with attempt/wakeAt/
// lastError reset and the signal's input preserved, superseding patch
// entirely — except when terminal is true (outcome was done or failed),
// in which case patch always applies and any signal that arrived is
// silently discarded, per the terminal-state rule (spec §4.7, §9).
func (s *Store) Release(ctx context.Context, q storedb.Querier, runID string, patch Patch, terminal bool) error {
	now := oceanclock.NowMs(s.Clock)

	if terminal {
		_, err := q.ExecContext(ctx,
			`UPDATE runs SET
				status = ?, attempt = ?, wake_at = NULL, last_error = ?,
				pending_input = NULL, locked_by = NULL, lock_expires_at = NULL,
				updated_ts = ?
			 WHERE run_id = ? AND status NOT IN ('done','failed')`,
			string(patch.Status), patch.Attempt, nullableStr(patch.LastError), now, runID,
		)
		if err != nil {
			return fmt.Errorf("runstore: release (terminal): %w", err)
		}
		return nil
	}

	var patchPending any
	if patch.HasPending {
		patchPending = string(patch.PendingInput)
	}

	_, err := q.ExecContext(ctx,
		`UPDATE runs SET
			pending_input = CASE WHEN pending_input IS NOT NULL THEN pending_input ELSE ? END,
			status         = CASE WHEN pending_input IS NOT NULL THEN 'pending' ELSE ? END,
			attempt        = CASE WHEN pending_input IS NOT NULL THEN 0 ELSE ? END,
			wake_at        = CASE WHEN pending_input IS NOT NULL THEN NULL ELSE ? END,
			last_error     = CASE WHEN pending_input IS NOT NULL THEN NULL ELSE ? END,
			locked_by = NULL, lock_expires_at = NULL,
			updated_ts = ?
		 WHERE run_id = ? AND status NOT IN ('done','failed')`,
		patchPending, string(patch.Status), patch.Attempt, nullableI64(patch.WakeAt), nullableStr(patch.LastError),
		now, runID,
	)
	if err != nil {
		return fmt.Errorf("runstore: release: %w", err)
	}
	return nil
}

// DeleteRun destroys a run, cascading to its ticks and tick/run storage.
func (s *Store) DeleteRun(ctx context.Context, q storedb.Querier, runID string) error {
	return storedb.DeleteRun(ctx, q, runID)
}

// DeleteSession destroys a session, cascading to its runs (and
// transitively their ticks/storage) and its session storage.
func (s *Store) DeleteSession(ctx context.Context, q storedb.Querier, sessionID string) error {
	return storedb.DeleteSession(ctx, q, sessionID)
}

const runColumnsForReturning = `run_id, session_id, clog_id, status, state, locked_by, lock_expires_at,
	attempt, max_attempts, wake_at, pending_input, last_error, created_ts, updated_ts`

func nullableRaw(v json.RawMessage) any {
	if v == nil {
		return nil
	}
	return string(v)
}

func nullableStr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableI64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
