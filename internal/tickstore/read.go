package tickstore

import (
	"context"
	"encoding/json"

	"github.com/erhathaway/ocean/internal/oceanerr"
	"github.com/erhathaway/ocean/internal/storedb"
)

// ReadPlanKind selects what a ReadPlan reads.
type ReadPlanKind string

const (
	PlanGlobal  ReadPlanKind = "global"
	PlanSession ReadPlanKind = "session"
	PlanRun     ReadPlanKind = "run"
	PlanTickRows ReadPlanKind = "tickRows"
	PlanHistory ReadPlanKind = "historyTicksForRun"
)

// ReadPlan is one entry of a read_scoped call.
type ReadPlan struct {
	Kind ReadPlanKind

	SessionID string // PlanSession
	RunID     string // PlanRun, PlanTickRows, PlanHistory
	TickID    string // PlanTickRows
	RowIDs    []string // PlanTickRows, PlanHistory (optional filter)

	LimitTicks int  // PlanHistory
	Descending bool // PlanHistory: true = most-recently-updated first
}

// ReadResult is the snapshot produced by one ReadPlan.
type ReadResult struct {
	Kind ReadPlanKind

	Global  json.RawMessage
	Session json.RawMessage
	Run     json.RawMessage
	Rows    []storedb.TickRow
	History []storedb.HistoryTick
}

// ReadScoped executes plans against the invoker's current tick context,
// enforcing the once-per-tick read budget and recording capabilities
// into the RBW ledger for every non-history plan.
func (inv *Invoker) ReadScoped(ctx context.Context, plans []ReadPlan) ([]ReadResult, error) {
	inv.mu.Lock()
	if inv.readCalled {
		inv.mu.Unlock()
		return nil, oceanerr.New(oceanerr.CodeStorageReadAlreadyCalled, "read_scoped already called this tick", nil)
	}
	inv.readCalled = true
	inv.mu.Unlock()

	for _, p := range plans {
		if err := inv.validatePlanScope(p); err != nil {
			return nil, err
		}
	}

	out := make([]ReadResult, 0, len(plans))
	for _, p := range plans {
		res, err := inv.execPlan(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (inv *Invoker) validatePlanScope(p ReadPlan) error {
	switch p.Kind {
	case PlanGlobal:
		return nil
	case PlanSession:
		if p.SessionID != inv.tickCtx.SessionID {
			return scopeErr("session plan sessionId does not match the current tick's session")
		}
	case PlanRun:
		if p.RunID != inv.tickCtx.RunID {
			return scopeErr("run plan runId does not match the current tick's run")
		}
	case PlanTickRows:
		if p.RunID != inv.tickCtx.RunID || p.TickID != inv.tickCtx.TickID {
			return scopeErr("tickRows plan (runId, tickId) does not match the current tick")
		}
	case PlanHistory:
		if p.RunID != inv.tickCtx.RunID {
			return scopeErr("historyTicksForRun plan runId does not match the current tick's run")
		}
	default:
		return scopeErr("unknown read plan kind")
	}
	return nil
}

func scopeErr(msg string) error {
	return oceanerr.New(oceanerr.CodeInvalidScope, msg, nil)
}

func (inv *Invoker) execPlan(ctx context.Context, p ReadPlan) (ReadResult, error) {
	res := ReadResult{Kind: p.Kind}
	switch p.Kind {
	case PlanGlobal:
		v, err := storedb.GetGlobal(ctx, inv.db, inv.clogID)
		if err != nil {
			return res, err
		}
		res.Global = v
		inv.ledger.recordGlobal()

	case PlanSession:
		v, err := storedb.GetSession(ctx, inv.db, inv.clogID, p.SessionID)
		if err != nil {
			return res, err
		}
		res.Session = v
		inv.ledger.recordSession(p.SessionID)

	case PlanRun:
		v, err := storedb.GetRunStorage(ctx, inv.db, inv.clogID, p.RunID)
		if err != nil {
			return res, err
		}
		res.Run = v
		inv.ledger.recordRun(p.RunID)

	case PlanTickRows:
		rows, err := storedb.GetTickRows(ctx, inv.db, inv.clogID, p.RunID, p.TickID, p.RowIDs)
		if err != nil {
			return res, err
		}
		res.Rows = rows
		recordRowIDs := p.RowIDs
		if len(recordRowIDs) == 0 {
			recordRowIDs = make([]string, 0, len(rows))
			for _, r := range rows {
				recordRowIDs = append(recordRowIDs, r.RowID)
			}
		}
		inv.ledger.recordTickRows(p.RunID, p.TickID, recordRowIDs)

	case PlanHistory:
		ticks, err := storedb.HistoryTicksForRun(ctx, inv.db, inv.clogID, p.RunID, p.RowIDs, p.LimitTicks, p.Descending)
		if err != nil {
			return res, err
		}
		res.History = ticks
		// Read-only with respect to the ledger: unlocks nothing (spec §4.3).
	}
	return res, nil
}
