package tickstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/erhathaway/ocean/internal/oceanclock"
	"github.com/erhathaway/ocean/internal/oceanerr"
	"github.com/erhathaway/ocean/internal/storedb"
)

// WriteOpKind names one write_scoped operation.
type WriteOpKind string

const (
	OpGlobalSet    WriteOpKind = "global.set"
	OpGlobalClear  WriteOpKind = "global.clear"
	OpSessionSet   WriteOpKind = "session.set"
	OpSessionClear WriteOpKind = "session.clear"
	OpRunSet       WriteOpKind = "run.set"
	OpRunClear     WriteOpKind = "run.clear"
	OpTickSet      WriteOpKind = "tick.set"
	OpTickDel      WriteOpKind = "tick.del"
	OpSessionDelete WriteOpKind = "session.delete"
	OpRunDelete     WriteOpKind = "run.delete"
	OpTickDelete    WriteOpKind = "tick.delete"
)

// WriteOp is one entry of a write_scoped call.
type WriteOp struct {
	Kind WriteOpKind

	SessionID string
	RunID     string
	TickID    string
	RowID     string
	Value     json.RawMessage
}

// WriteScoped validates every op (scope, then RBW ledger membership)
// before executing any, then applies all ops in one SQL transaction, so
// a mid-batch failure cannot leave partial state (spec §4.3).
func (inv *Invoker) WriteScoped(ctx context.Context, ops []WriteOp) (int, error) {
	inv.mu.Lock()
	if !inv.readCalled {
		inv.mu.Unlock()
		return 0, oceanerr.New(oceanerr.CodeStorageWriteBeforeRead, "write_scoped called before read_scoped this tick", nil)
	}
	if inv.writeCalled {
		inv.mu.Unlock()
		return 0, oceanerr.New(oceanerr.CodeStorageWriteAlreadyCalled, "write_scoped already called this tick", nil)
	}
	inv.writeCalled = true
	inv.mu.Unlock()

	for _, op := range ops {
		if err := inv.validateWriteOp(op); err != nil {
			return 0, err
		}
	}

	tx, err := inv.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("tickstore: write_scoped: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	now := oceanclock.NowMs(inv.clock)
	for _, op := range ops {
		if err := inv.applyWriteOp(ctx, tx, op, now); err != nil {
			return 0, fmt.Errorf("tickstore: write_scoped: apply %s: %w", op.Kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("tickstore: write_scoped: commit: %w", err)
	}
	return len(ops), nil
}

func (inv *Invoker) validateWriteOp(op WriteOp) error {
	switch op.Kind {
	case OpGlobalSet, OpGlobalClear:
		if !inv.ledger.hasGlobal() {
			return rbwErr("global")
		}

	case OpSessionSet, OpSessionClear, OpSessionDelete:
		if op.SessionID != inv.tickCtx.SessionID {
			return scopeErr("session op sessionId does not match the current tick's session")
		}
		if !inv.ledger.hasSession(op.SessionID) {
			return rbwErr("session:" + op.SessionID)
		}

	case OpRunSet, OpRunClear, OpRunDelete:
		if op.RunID != inv.tickCtx.RunID {
			return scopeErr("run op runId does not match the current tick's run")
		}
		if !inv.ledger.hasRun(op.RunID) {
			return rbwErr("run:" + op.RunID)
		}

	case OpTickSet, OpTickDel:
		if op.RunID != inv.tickCtx.RunID || op.TickID != inv.tickCtx.TickID {
			return scopeErr("tick op (runId, tickId) does not match the current tick")
		}
		if !inv.ledger.hasTickRow(op.RunID, op.TickID, op.RowID) {
			return rbwErr("tick:" + op.RunID + "/" + op.TickID + "/" + op.RowID)
		}

	case OpTickDelete:
		if op.RunID != inv.tickCtx.RunID || op.TickID != inv.tickCtx.TickID {
			return scopeErr("tick.delete (runId, tickId) does not match the current tick")
		}
		if !inv.ledger.hasAnyTickRow(op.RunID, op.TickID) {
			return rbwErr("tick-entity:" + op.RunID + "/" + op.TickID)
		}

	default:
		return oceanerr.New(oceanerr.CodeInvalidScope, "unknown write op kind", nil)
	}
	return nil
}

func rbwErr(identity string) error {
	return oceanerr.New(oceanerr.CodeRBWViolation, "write targeted an identity not read this tick: "+identity, nil)
}

func (inv *Invoker) applyWriteOp(ctx context.Context, tx *sql.Tx, op WriteOp, now int64) error {
	switch op.Kind {
	case OpGlobalSet:
		return storedb.SetGlobal(ctx, tx, inv.clogID, op.Value, now)
	case OpGlobalClear:
		return storedb.ClearGlobal(ctx, tx, inv.clogID)
	case OpSessionSet:
		return storedb.SetSession(ctx, tx, inv.clogID, op.SessionID, op.Value, now)
	case OpSessionClear:
		return storedb.ClearSession(ctx, tx, inv.clogID, op.SessionID)
	case OpRunSet:
		return storedb.SetRunStorage(ctx, tx, inv.clogID, op.RunID, op.Value, now)
	case OpRunClear:
		return storedb.ClearRunStorage(ctx, tx, inv.clogID, op.RunID)
	case OpTickSet:
		return storedb.SetTickRow(ctx, tx, inv.clogID, op.RunID, op.TickID, op.RowID, op.Value, now)
	case OpTickDel:
		return storedb.DelTickRow(ctx, tx, inv.clogID, op.RunID, op.TickID, op.RowID)
	case OpSessionDelete:
		return storedb.DeleteSession(ctx, tx, op.SessionID)
	case OpRunDelete:
		return storedb.DeleteRun(ctx, tx, op.RunID)
	case OpTickDelete:
		return storedb.DeleteTick(ctx, tx, op.RunID, op.TickID)
	}
	return fmt.Errorf("unreachable op kind %s", op.Kind)
}
