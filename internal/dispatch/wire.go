package dispatch

import (
	"encoding/json"

	"github.com/erhathaway/ocean/internal/storedb"
	"github.com/erhathaway/ocean/internal/tickstore"
)

// These envelope types are the JSON shapes adapters send as tool-call
// input/output. They are control-plane structs, not opaque domain
// values, so plain encoding/json (unlike run/tick/event payloads, which
// stay json.RawMessage end to end) is the right tool here.

type readScopedRequest struct {
	Plans []planJSON `json:"plans"`
}

type planJSON struct {
	Kind       string   `json:"kind"`
	SessionID  string   `json:"sessionId,omitempty"`
	RunID      string   `json:"runId,omitempty"`
	TickID     string   `json:"tickId,omitempty"`
	RowIDs     []string `json:"rowIds,omitempty"`
	LimitTicks int      `json:"limitTicks,omitempty"`
	Order      string   `json:"order,omitempty"`
}

func (p planJSON) toPlan() tickstore.ReadPlan {
	return tickstore.ReadPlan{
		Kind:       tickstore.ReadPlanKind(p.Kind),
		SessionID:  p.SessionID,
		RunID:      p.RunID,
		TickID:     p.TickID,
		RowIDs:     p.RowIDs,
		LimitTicks: p.LimitTicks,
		Descending: p.Order == "desc",
	}
}

type readScopedResponse struct {
	Snapshot []snapshotEntry `json:"snapshot"`
}

type snapshotEntry struct {
	Kind    string          `json:"kind"`
	Value   json.RawMessage `json:"value,omitempty"`
	Rows    []tickRowJSON   `json:"rows,omitempty"`
	History []historyJSON   `json:"history,omitempty"`
}

type tickRowJSON struct {
	RowID     string          `json:"rowId"`
	Value     json.RawMessage `json:"value,omitempty"`
	UpdatedTs int64           `json:"updatedTs"`
}

type historyJSON struct {
	TickID    string          `json:"tickId"`
	UpdatedTs int64           `json:"updatedTs"`
	Rows      []tickRowJSON   `json:"rows"`
}

func toSnapshotEntry(r tickstore.ReadResult) snapshotEntry {
	e := snapshotEntry{Kind: string(r.Kind)}
	switch r.Kind {
	case tickstore.PlanGlobal:
		e.Value = r.Global
	case tickstore.PlanSession:
		e.Value = r.Session
	case tickstore.PlanRun:
		e.Value = r.Run
	case tickstore.PlanTickRows:
		e.Rows = toTickRowsJSON(r.Rows)
	case tickstore.PlanHistory:
		for _, h := range r.History {
			e.History = append(e.History, historyJSON{
				TickID: h.TickID, UpdatedTs: h.UpdatedTs, Rows: toTickRowsJSON(h.Rows),
			})
		}
	}
	return e
}

func toTickRowsJSON(rows []storedb.TickRow) []tickRowJSON {
	out := make([]tickRowJSON, 0, len(rows))
	for _, r := range rows {
		out = append(out, tickRowJSON{RowID: r.RowID, Value: r.Value, UpdatedTs: r.UpdatedTs})
	}
	return out
}

type writeScopedRequest struct {
	Ops []opJSON `json:"ops"`
}

type opJSON struct {
	Kind      string          `json:"kind"`
	SessionID string          `json:"sessionId,omitempty"`
	RunID     string          `json:"runId,omitempty"`
	TickID    string          `json:"tickId,omitempty"`
	RowID     string          `json:"rowId,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
}

func (o opJSON) toOp() tickstore.WriteOp {
	return tickstore.WriteOp{
		Kind: tickstore.WriteOpKind(o.Kind), SessionID: o.SessionID, RunID: o.RunID,
		TickID: o.TickID, RowID: o.RowID, Value: o.Value,
	}
}

type writeScopedResponse struct {
	Applied int `json:"applied"`
}

type emitRequest struct {
	Scope   string          `json:"scope"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type emitResponse struct {
	OK bool `json:"ok"`
}

type clogCallRequest struct {
	Address string          `json:"address"`
	Payload json.RawMessage `json:"payload"`
}

type clogCallResponse struct {
	Result json.RawMessage `json:"result"`
}
