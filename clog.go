package ocean

import (
	"context"
	"encoding/json"

	"github.com/erhathaway/ocean/internal/dispatch"
	"github.com/erhathaway/ocean/internal/oceantypes"
	"github.com/erhathaway/ocean/internal/scheduler"
)

// ToolInvoker is the surface an adapter's AdvanceHandler or
// EndpointHandler calls through to read/write scoped storage, emit
// events, and reach peer adapters (spec §4.5, §6).
type ToolInvoker = dispatch.ToolInvoker

// TickContext is the (runId, tickId, sessionId, clogId) tuple bound to
// one tick, passed to endpoint handlers invoked via ocean.clog.call.
type TickContext = oceantypes.TickContext

// TickOutcome is the tagged result an AdvanceHandler returns, one of
// six shapes the scheduler classifies per spec §4.7. Build one with the
// Outcome* constructors below rather than the struct literal directly.
type TickOutcome = oceantypes.Outcome

// Outcome status tags, re-exported for adapter code.
const (
	OutcomeOK       = oceantypes.OutcomeOK
	OutcomeDone     = oceantypes.OutcomeDone
	OutcomeContinue = oceantypes.OutcomeContinue
	OutcomeWait     = oceantypes.OutcomeWait
	OutcomeRetry    = oceantypes.OutcomeRetry
	OutcomeFailed   = oceantypes.OutcomeFailed
)

// OutcomeOKResult reports the tick finished with no further work
// pending; the run returns to idle.
func OutcomeOKResult() TickOutcome { return TickOutcome{Status: OutcomeOK} }

// OutcomeDoneResult terminates the run successfully with output.
func OutcomeDoneResult(output json.RawMessage) TickOutcome {
	return TickOutcome{Status: OutcomeDone, Output: output}
}

// OutcomeContinueResult re-enqueues the run immediately with input as
// its next pendingInput.
func OutcomeContinueResult(input json.RawMessage) TickOutcome {
	return TickOutcome{Status: OutcomeContinue, Input: input}
}

// OutcomeWaitResult parks the run until wakeAt (epoch ms).
func OutcomeWaitResult(wakeAtMs int64) TickOutcome {
	return TickOutcome{Status: OutcomeWait, WakeAt: wakeAtMs}
}

// OutcomeRetryResult asks the scheduler to back off and retry, or fail
// terminally once maxAttempts is exhausted.
func OutcomeRetryResult(err string) TickOutcome {
	return TickOutcome{Status: OutcomeRetry, Error: err}
}

// OutcomeFailedResult terminates the run unsuccessfully, bypassing
// retry even if attempts remain.
func OutcomeFailedResult(err string) TickOutcome {
	return TickOutcome{Status: OutcomeFailed, Error: err}
}

// AdvanceHandler is an adapter's onAdvance callback (spec §4.6 step 6).
// It receives the run's pendingInput snapshot and the tools bound to
// its own clogId, and returns the outcome classifying what happens
// next. Returning an error is equivalent to throwing: the scheduler
// converts it to a retry outcome, same as a recovered panic.
type AdvanceHandler func(ctx context.Context, input json.RawMessage, tools ToolInvoker, attempt int) (TickOutcome, error)

// EndpointHandler answers one peer-addressable method on a Clog,
// reachable from any adapter's tools via ocean.clog.call
// ("clog.<id>.<method>"). It runs with its OWN clogId's fresh storage
// budget, never the caller's (spec §4.5, §9).
type EndpointHandler func(ctx context.Context, tools ToolInvoker, tick TickContext, payload json.RawMessage) (json.RawMessage, error)

// Clog is one registered adapter: its identity, its onAdvance handler
// (optional — a Clog may exist purely to expose endpoints other
// adapters call), and the peer-callable endpoints it exposes.
type Clog struct {
	ID       string
	Advance  AdvanceHandler
	Endpoint map[string]EndpointHandler
}

// registry collects registered Clogs and adapts them to the internal
// dispatch.Registry and scheduler.HandlerRegistry interfaces, which
// the root package implements so the internal packages never import
// it back (would cycle).
type registry struct {
	clogs map[string]Clog
}

func newRegistry() *registry {
	return &registry{clogs: make(map[string]Clog)}
}

func (r *registry) register(c Clog) {
	r.clogs[c.ID] = c
}

func (r *registry) HasClog(clogID string) bool {
	_, ok := r.clogs[clogID]
	return ok
}

func (r *registry) Endpoint(clogID, method string) (dispatch.EndpointHandler, bool) {
	c, ok := r.clogs[clogID]
	if !ok {
		return nil, false
	}
	h, ok := c.Endpoint[method]
	if !ok {
		return nil, false
	}
	return func(ctx context.Context, tools dispatch.ToolInvoker, tick oceantypes.TickContext, payload json.RawMessage) (json.RawMessage, error) {
		return h(ctx, tools, tick, payload)
	}, true
}

func (r *registry) Advance(clogID string) (scheduler.AdvanceHandler, bool) {
	c, ok := r.clogs[clogID]
	if !ok || c.Advance == nil {
		return nil, false
	}
	return func(ctx context.Context, input json.RawMessage, tools dispatch.ToolInvoker, attempt int) (oceantypes.Outcome, error) {
		return c.Advance(ctx, input, tools, attempt)
	}, true
}
