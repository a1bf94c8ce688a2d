package dispatch

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/erhathaway/ocean/internal/eventlog"
	"github.com/erhathaway/ocean/internal/oceanerr"
	"github.com/erhathaway/ocean/internal/oceantypes"
	"github.com/erhathaway/ocean/internal/tickstore"
)

const (
	toolReadScoped  = "ocean.storage.read_scoped"
	toolWriteScoped = "ocean.storage.write_scoped"
	toolEventsEmit  = "ocean.events.emit"
	toolClogCall    = "ocean.clog.call"
)

// Dispatcher is the ToolInvoker bound to one clogId within one tick. It
// is minted fresh per adapter per tick (and fresh again, via chain, for
// every peer call), so its tickstore.Invoker carries an independent
// budget and ledger (spec §4.5, §9).
type Dispatcher struct {
	db       *sql.DB
	inv      *tickstore.Invoker
	factory  *tickstore.Factory
	events   *eventlog.Log
	registry Registry
	tickCtx  oceantypes.TickContext
	clogID   string
	chain    *callChain
}

// New builds the root Dispatcher for one adapter's tick invocation.
func New(db *sql.DB, factory *tickstore.Factory, events *eventlog.Log, registry Registry, clogID string, tickCtx oceantypes.TickContext) *Dispatcher {
	return &Dispatcher{
		db: db, inv: factory.For(clogID), factory: factory, events: events,
		registry: registry, tickCtx: tickCtx, clogID: clogID, chain: newCallChain(clogID),
	}
}

// Call implements ToolInvoker, routing by name (spec §4.5). Errors
// returned here are *oceanerr.Error when the code matters for adapter
// branching, per the tool propagation policy (spec §7).
func (d *Dispatcher) Call(ctx context.Context, name string, input json.RawMessage) (json.RawMessage, error) {
	switch name {
	case toolReadScoped:
		return d.readScoped(ctx, input)
	case toolWriteScoped:
		return d.writeScoped(ctx, input)
	case toolEventsEmit:
		return d.emit(ctx, input)
	case toolClogCall:
		return d.clogCall(ctx, input)
	default:
		return nil, oceanerr.New(oceanerr.CodeUnknownTool, "unknown tool: "+name, nil)
	}
}

func (d *Dispatcher) readScoped(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var req readScopedRequest
	if err := json.Unmarshal(input, &req); err != nil {
		return nil, fmt.Errorf("dispatch: read_scoped: decode input: %w", err)
	}
	plans := make([]tickstore.ReadPlan, 0, len(req.Plans))
	for _, p := range req.Plans {
		plans = append(plans, p.toPlan())
	}
	results, err := d.inv.ReadScoped(ctx, plans)
	if err != nil {
		return nil, err
	}
	resp := readScopedResponse{Snapshot: make([]snapshotEntry, 0, len(results))}
	for _, r := range results {
		resp.Snapshot = append(resp.Snapshot, toSnapshotEntry(r))
	}
	return json.Marshal(resp)
}

func (d *Dispatcher) writeScoped(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var req writeScopedRequest
	if err := json.Unmarshal(input, &req); err != nil {
		return nil, fmt.Errorf("dispatch: write_scoped: decode input: %w", err)
	}
	ops := make([]tickstore.WriteOp, 0, len(req.Ops))
	for _, o := range req.Ops {
		ops = append(ops, o.toOp())
	}
	n, err := d.inv.WriteScoped(ctx, ops)
	if err != nil {
		return nil, err
	}
	return json.Marshal(writeScopedResponse{Applied: n})
}

func (d *Dispatcher) emit(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var req emitRequest
	if err := json.Unmarshal(input, &req); err != nil {
		return nil, fmt.Errorf("dispatch: events.emit: decode input: %w", err)
	}
	scope := oceantypes.ScopeKind(req.Scope)

	var sessionID, runID, tickID *string
	switch scope {
	case oceantypes.ScopeSession:
		sessionID = &d.tickCtx.SessionID
	case oceantypes.ScopeRun:
		sessionID, runID = &d.tickCtx.SessionID, &d.tickCtx.RunID
	case oceantypes.ScopeTick:
		sessionID, runID, tickID = &d.tickCtx.SessionID, &d.tickCtx.RunID, &d.tickCtx.TickID
	case oceantypes.ScopeGlobal:
		// no identifiers
	default:
		return nil, oceanerr.New(oceanerr.CodeInvalidScope, "unknown event scope: "+req.Scope, nil)
	}

	if _, err := d.events.Append(ctx, d.db, scope, sessionID, runID, tickID, req.Type, req.Payload); err != nil {
		return nil, fmt.Errorf("dispatch: events.emit: %w", err)
	}
	return json.Marshal(emitResponse{OK: true})
}

func (d *Dispatcher) clogCall(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var req clogCallRequest
	if err := json.Unmarshal(input, &req); err != nil {
		return nil, fmt.Errorf("dispatch: clog.call: decode input: %w", err)
	}
	peerClogID, method, err := parseAddress(req.Address)
	if err != nil {
		return nil, err
	}
	if !d.registry.HasClog(peerClogID) {
		return nil, oceanerr.New(oceanerr.CodeUnknownClog, "unknown clog: "+peerClogID, nil)
	}
	handler, ok := d.registry.Endpoint(peerClogID, method)
	if !ok {
		return nil, oceanerr.New(oceanerr.CodeUnknownEndpoint, "unknown endpoint: "+req.Address, nil)
	}

	nextChain, err := d.chain.step(peerClogID)
	if err != nil {
		return nil, err
	}

	peer := &Dispatcher{
		db: d.db, inv: d.factory.For(peerClogID), factory: d.factory, events: d.events,
		registry: d.registry, tickCtx: d.tickCtx, clogID: peerClogID, chain: nextChain,
	}

	result, err := handler(ctx, peer, d.tickCtx, req.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(clogCallResponse{Result: result})
}

// parseAddress parses "clog.<id>.<method>" per spec §4.5.
func parseAddress(address string) (clogID, method string, err error) {
	parts := strings.SplitN(address, ".", 3)
	if len(parts) != 3 || parts[0] != "clog" || parts[1] == "" || parts[2] == "" {
		return "", "", oceanerr.New(oceanerr.CodeUnknownEndpoint, "malformed clog.call address: "+address, nil)
	}
	return parts[1], parts[2], nil
}
