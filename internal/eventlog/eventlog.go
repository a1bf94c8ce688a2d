// Package eventlog implements the append-only, scope-filtered event log
// (spec §4.4): monotone seq via the database, cursor-based scoped reads,
// and a TTL sweep throttled to at most once per interval using
// github.com/joeycumines/go-catrate's sliding-window limiter.
package eventlog

import (
	"context"
	"time"

	"github.com/joeycumines/go-catrate"

	"github.com/erhathaway/ocean/internal/oceanclock"
	"github.com/erhathaway/ocean/internal/oceantypes"
	"github.com/erhathaway/ocean/internal/storedb"
)

// category is the single catrate bucket key; the log has one global GC
// throttle, not one per scope.
const category = "gc"

// Log appends and reads events, and throttles its own TTL sweep.
type Log struct {
	clock oceanclock.Func
	gcTTL time.Duration
	limiter *catrate.Limiter
}

// New builds a Log. gcMinInterval bounds how often GCIfDue actually
// sweeps (default 60s per spec §4.4); gcTTL is how old an event must be
// before the sweep deletes it.
func New(clock oceanclock.Func, gcMinInterval, gcTTL time.Duration) *Log {
	if gcMinInterval <= 0 {
		gcMinInterval = 60 * time.Second
	}
	return &Log{
		clock: clock,
		gcTTL: gcTTL,
		limiter: catrate.NewLimiter(map[time.Duration]int{
			gcMinInterval: 1,
		}),
	}
}

// Append inserts one event, assigning id and ts, and returns the
// database-assigned seq.
func (l *Log) Append(ctx context.Context, q storedb.Querier, scope oceantypes.ScopeKind, sessionID, runID, tickID *string, evtType string, payload []byte) (int64, error) {
	e := oceantypes.Event{
		ID:        oceanclock.NewID("evt"),
		Ts:        oceanclock.NowMs(l.clock),
		ScopeKind: scope,
		SessionID: sessionID,
		RunID:     runID,
		TickID:    tickID,
		Type:      evtType,
		Payload:   payload,
	}
	return storedb.InsertEvent(ctx, q, e)
}

// ReadByScope returns events with seq > afterSeq, in the given scope,
// ordered by seq ascending, capped at limit. A tick scope is not
// filtered: it returns events of every scope (see storedb.ReadByScope).
func (l *Log) ReadByScope(ctx context.Context, q storedb.Querier, scope oceantypes.ScopeKind, sessionID, runID string, afterSeq int64, limit int) ([]oceantypes.Event, error) {
	return storedb.ReadByScope(ctx, q, scope, sessionID, runID, afterSeq, limit)
}

// GCIfDue sweeps rows older than gcTTL, but only if the limiter has not
// already allowed a sweep within the configured interval. Safe to call
// from every request path; most calls are a no-op check.
func (l *Log) GCIfDue(ctx context.Context, q storedb.Querier) (swept int64, ran bool, err error) {
	if l.gcTTL <= 0 {
		return 0, false, nil
	}
	if _, ok := l.limiter.Allow(category); !ok {
		return 0, false, nil
	}
	cutoff := oceanclock.NowMs(l.clock) - l.gcTTL.Milliseconds()
	n, err := storedb.GCByTTL(ctx, q, cutoff)
	if err != nil {
		return 0, true, err
	}
	return n, true, nil
}
