package ocean

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/erhathaway/ocean/internal/eventlog"
	"github.com/erhathaway/ocean/internal/oceanclock"
	"github.com/erhathaway/ocean/internal/oceantypes"
	"github.com/erhathaway/ocean/internal/runstore"
	"github.com/erhathaway/ocean/internal/schema"
	"github.com/erhathaway/ocean/internal/scheduler"
)

// Engine is the entry point to a persistence-first execution substrate:
// every run, tick, and piece of storage it touches lives in db, never
// in Engine's own memory, so any number of Engines (one per process, one
// per request handler, however the deployment shapes it) can share one
// database with no coordination beyond the row locks runstore takes
// (spec §1, §3 "no in-memory state").
type Engine struct {
	db       *sql.DB
	clock    oceanclock.Func
	runs     *runstore.Store
	events   *eventlog.Log
	registry *registry
	sched    *scheduler.Scheduler
	cfg      config
}

// New builds an Engine over db. It does not migrate the schema; call
// Migrate first (or ensure it has already run elsewhere).
func New(db *sql.DB, opts ...Option) *Engine {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	runs := &runstore.Store{Clock: cfg.clock}
	events := eventlog.New(cfg.clock, cfg.gcMinInterval, cfg.eventTTL)
	reg := newRegistry()
	sched := scheduler.New(db, cfg.clock, events, reg, reg, scheduler.Config{
		InstanceID: cfg.instanceID,
		LockMs:     cfg.lockDuration.Milliseconds(),
	}, cfg.log)

	return &Engine{db: db, clock: cfg.clock, runs: runs, events: events, registry: reg, sched: sched, cfg: cfg}
}

// Migrate applies ocean's schema (seven tables, spec §6 "Persistent
// schema"). Idempotent; safe to call at the top of every process's
// startup.
func Migrate(ctx context.Context, db *sql.DB) error {
	return schema.Migrate(ctx, db)
}

// RegisterClog registers one adapter's onAdvance handler and endpoints.
// Must be called before Advance or CallClog can reach it. Not safe to
// call concurrently with Advance/CallClog.
func (e *Engine) RegisterClog(c Clog) {
	e.registry.register(c)
}

// CreateRunOptions configures CreateRun. Input/InitialState are opaque
// JSON, stored and returned verbatim (spec §4.1).
type CreateRunOptions struct {
	// Input, if HasInput is true, becomes the run's pendingInput and
	// moves it straight to status=pending. Passing HasInput=false (the
	// zero value) creates an idle run instead — distinct from passing a
	// JSON null input, which still counts as "has input".
	Input        json.RawMessage
	HasInput     bool
	InitialState json.RawMessage
	// MaxAttempts bounds the retry outcome before a run fails
	// terminally. Defaults to 3 if zero or negative.
	MaxAttempts int
}

// CreateRun creates the session if absent and a new run owned by
// clogID (spec §4.1 createRun).
func (e *Engine) CreateRun(ctx context.Context, sessionID, clogID string, opts CreateRunOptions) (string, error) {
	return e.runs.CreateRun(ctx, e.db, sessionID, clogID, runstore.CreateOptions{
		Input: opts.Input, HasInput: opts.HasInput, InitialState: opts.InitialState, MaxAttempts: opts.MaxAttempts,
	})
}

// Signal enqueues new input for a run, per the absorption rules in
// spec §4.1: idle/waiting move to pending, active/pending stay as they
// are (the fold happens at release if a tick is in flight), and
// terminal runs silently ignore the call.
func (e *Engine) Signal(ctx context.Context, runID string, input json.RawMessage) error {
	return e.runs.Signal(ctx, e.db, runID, input)
}

// GetRun returns a run's current externally-observable state, with
// status reflecting the derived "active" value when a lock is held and
// unexpired (spec §9). Returns (nil, nil) if runID does not exist.
func (e *Engine) GetRun(ctx context.Context, runID string) (*oceantypes.Run, error) {
	return e.runs.GetRun(ctx, e.db, runID)
}

// DeleteRun permanently removes a run and its ticks/storage.
func (e *Engine) DeleteRun(ctx context.Context, runID string) error {
	return e.runs.DeleteRun(ctx, e.db, runID)
}

// DeleteSession permanently removes a session and everything nested
// under it (its runs, their ticks/storage, and its session storage).
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	return e.runs.DeleteSession(ctx, e.db, sessionID)
}

// AdvanceResult is advance()'s return value (spec §6).
type AdvanceResult = scheduler.AdvanceResult

// Advance performs one logical unit of work: acquire at most one
// eligible run, dispatch a tick to its registered handler, apply the
// outcome, and release (spec §4.6). Returns Advanced=0 if no run was
// eligible right now; callers loop (see Drain) to keep draining work.
func (e *Engine) Advance(ctx context.Context) (AdvanceResult, error) {
	return e.sched.Advance(ctx)
}

// ReadEvents returns events in the given scope with seq > afterSeq,
// ascending, capped at limit (spec §4.4). sessionID/runID are ignored
// for ScopeGlobal. ScopeTick is not filtered and returns events of
// every scope.
func (e *Engine) ReadEvents(ctx context.Context, scope oceantypes.ScopeKind, sessionID, runID string, afterSeq int64, limit int) ([]oceantypes.Event, error) {
	return e.events.ReadByScope(ctx, e.db, scope, sessionID, runID, afterSeq, limit)
}

// GCEventsIfDue sweeps events older than the configured event TTL, at
// most once per the configured GC interval (spec §4.4). Safe to call
// on every request path; most calls are a cheap no-op check. Returns
// ran=false (and swept=0) if the TTL is unset or the throttle window
// has not elapsed.
func (e *Engine) GCEventsIfDue(ctx context.Context) (swept int64, ran bool, err error) {
	return e.events.GCIfDue(ctx, e.db)
}

// CallClog invokes a registered peer endpoint directly, outside of any
// run's tick — useful for request-time reads that don't need to go
// through advance(). address is "clog.<id>.<method>"; the handler gets
// a synthetic tick context (fresh run and tick ids, no session) and an
// adhocTools invoker, which rejects every tool call: no storage, event
// or peer-call tools are available on this path.
func (e *Engine) CallClog(ctx context.Context, address string, payload json.RawMessage) (json.RawMessage, error) {
	clogID, method, err := splitAddress(address)
	if err != nil {
		return nil, err
	}
	handler, ok := e.registry.Endpoint(clogID, method)
	if !ok {
		return nil, fmt.Errorf("ocean: call clog: unknown endpoint %q", address)
	}
	tick := oceantypes.TickContext{
		RunID: oceanclock.NewID("adhoc"), TickID: oceanclock.NewID("tick"), ClogID: clogID,
	}
	return handler(ctx, adhocTools{}, tick, payload)
}

// adhocTools is the ToolInvoker a request-time CallClog hands its
// handler: there is no run or tick backing the call, so storage/emit
// tools are unavailable. Handlers meant to be called this way should
// avoid them, or Engine should route the call through Advance instead.
type adhocTools struct{}

func (adhocTools) Call(ctx context.Context, name string, input json.RawMessage) (json.RawMessage, error) {
	return nil, fmt.Errorf("ocean: tool %q unavailable outside a tick; invoke via Advance", name)
}

func splitAddress(address string) (clogID, method string, err error) {
	parts := strings.SplitN(address, ".", 3)
	if len(parts) != 3 || parts[0] != "clog" || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("ocean: malformed clog address: %q", address)
	}
	return parts[1], parts[2], nil
}
