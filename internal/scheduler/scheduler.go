// Package scheduler implements advance() (spec §4.6): acquire a run,
// dispatch one tick to its adapter's handler, classify the outcome, and
// release atomically while folding in signals that arrived mid-tick.
// Only one run advances per call; external drivers (cron, request
// handlers, Drain) call Advance repeatedly until it reports none left.
package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/erhathaway/ocean/internal/dispatch"
	"github.com/erhathaway/ocean/internal/eventlog"
	"github.com/erhathaway/ocean/internal/oceanclock"
	"github.com/erhathaway/ocean/internal/oceanlog"
	"github.com/erhathaway/ocean/internal/oceantypes"
	"github.com/erhathaway/ocean/internal/runstore"
	"github.com/erhathaway/ocean/internal/storedb"
	"github.com/erhathaway/ocean/internal/tickstore"
)

// AdvanceHandler is an adapter's onAdvance callback: given the run's
// pendingInput snapshot and the tools bound to its own clogId, produce
// a TickOutcome. It MAY return an error instead; the scheduler treats
// that the same as a thrown exception, converting it to a retry outcome
// (spec §4.8).
type AdvanceHandler func(ctx context.Context, input json.RawMessage, tools dispatch.ToolInvoker, attempt int) (oceantypes.Outcome, error)

// HandlerRegistry resolves a clog's onAdvance handler. The root ocean
// package implements this; scheduler never imports it (would cycle).
type HandlerRegistry interface {
	Advance(clogID string) (AdvanceHandler, bool)
}

// Config bundles the per-Scheduler tunables that aren't conceptually
// part of its collaborators.
type Config struct {
	InstanceID string
	LockMs     int64
}

// Scheduler drives advance() against one database.
type Scheduler struct {
	db       *sql.DB
	clock    oceanclock.Func
	runs     *runstore.Store
	events   *eventlog.Log
	handlers HandlerRegistry
	registry dispatch.Registry
	cfg      Config
	log      oceanlog.Logger
}

// New builds a Scheduler. log defaults to oceanlog.Discard if nil.
func New(db *sql.DB, clock oceanclock.Func, events *eventlog.Log, handlers HandlerRegistry, registry dispatch.Registry, cfg Config, log oceanlog.Logger) *Scheduler {
	if log == nil {
		log = oceanlog.Discard{}
	}
	return &Scheduler{
		db: db, clock: clock, runs: &runstore.Store{Clock: clock}, events: events,
		handlers: handlers, registry: registry, cfg: cfg, log: log,
	}
}

// RunOutcome is one advanced run's result.
type RunOutcome struct {
	RunID   string
	Outcome oceantypes.OutcomeStatus
}

// AdvanceResult is advance()'s return value (spec §6).
type AdvanceResult struct {
	Advanced int
	Results  []RunOutcome
}

// Advance performs one logical unit of work: acquire at most one
// eligible run, dispatch a tick to its handler, apply the outcome, and
// release. Returns Advanced=0 if no run was eligible.
func (s *Scheduler) Advance(ctx context.Context) (AdvanceResult, error) {
	run, err := s.runs.Acquire(ctx, s.db, s.cfg.InstanceID, s.cfg.LockMs)
	if err != nil {
		return AdvanceResult{}, fmt.Errorf("scheduler: advance: acquire: %w", err)
	}
	if run == nil {
		return AdvanceResult{Advanced: 0}, nil
	}
	s.log.WithField("runId", run.RunID).WithField("clogId", run.ClogID).Debug("acquired run")

	snapshot := run.PendingInput
	if snapshot != nil {
		if err := s.runs.ConsumePendingInput(ctx, s.db, run.RunID); err != nil {
			return AdvanceResult{}, fmt.Errorf("scheduler: advance: consume pending input: %w", err)
		}
	}

	handler, ok := s.handlers.Advance(run.ClogID)
	if !ok {
		s.log.WithField("runId", run.RunID).Warn("no onAdvance handler registered")
		msg := "no onAdvance handler"
		if err := s.runs.Release(ctx, s.db, run.RunID, runstore.Patch{
			Status: oceantypes.StatusFailed, Attempt: run.Attempt, LastError: &msg,
		}, true); err != nil {
			return AdvanceResult{}, fmt.Errorf("scheduler: advance: release (no handler): %w", err)
		}
		return AdvanceResult{Advanced: 1, Results: []RunOutcome{{RunID: run.RunID, Outcome: oceantypes.OutcomeFailed}}}, nil
	}

	tickID := oceanclock.NewID("tick")
	now := oceanclock.NowMs(s.clock)
	if err := storedb.InsertTickIgnore(ctx, s.db, run.RunID, tickID, now); err != nil {
		return AdvanceResult{}, fmt.Errorf("scheduler: advance: insert tick: %w", err)
	}

	tickCtx := oceantypes.TickContext{
		RunID: run.RunID, TickID: tickID, SessionID: run.SessionID, ClogID: run.ClogID, Attempt: run.Attempt,
	}
	factory := tickstore.NewFactory(s.db, s.clock, tickCtx)
	invoker := dispatch.New(s.db, factory, s.events, s.registry, run.ClogID, tickCtx)

	outcome := s.callHandler(ctx, handler, snapshot, invoker, run.Attempt)

	patch, terminal := applyOutcome(run, outcome, now)
	if err := s.runs.Release(ctx, s.db, run.RunID, patch, terminal); err != nil {
		return AdvanceResult{}, fmt.Errorf("scheduler: advance: release: %w", err)
	}

	s.log.WithField("runId", run.RunID).WithField("outcome", string(outcome.Status)).Debug("released run")
	return AdvanceResult{Advanced: 1, Results: []RunOutcome{{RunID: run.RunID, Outcome: outcome.Status}}}, nil
}

// callHandler invokes the adapter's handler, converting both a returned
// error and a recovered panic into a retry outcome (spec §4.6 step 6,
// §4.8 "thrown exception ⇒ retry").
func (s *Scheduler) callHandler(ctx context.Context, handler AdvanceHandler, input json.RawMessage, tools dispatch.ToolInvoker, attempt int) (outcome oceantypes.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("panic", fmt.Sprint(r)).Error("advance handler panicked")
			outcome = oceantypes.Outcome{Status: oceantypes.OutcomeRetry, Error: fmt.Sprintf("panic: %v", r)}
		}
	}()

	o, err := handler(ctx, input, tools, attempt)
	if err != nil {
		return oceantypes.Outcome{Status: oceantypes.OutcomeRetry, Error: err.Error()}
	}
	return o
}
