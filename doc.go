// Package ocean is a persistence-first execution substrate for
// resumable, long-lived runs that make progress one discrete tick at a
// time, driven entirely through a relational database with no
// in-memory state and no background workers.
//
// A run is created against an adapter (a "clog") with createRun, moves
// through {idle, pending, active, waiting, done, failed} as signal and
// advance are called, and every side effect it has — its storage reads
// and writes, the events it emits, the peer adapters it calls — happens
// inside one bounded tick, scoped by a read-before-write ledger that
// makes every write provably grounded in something the same tick
// already read.
//
// Callers drive progress by calling Advance repeatedly (directly, via
// Drain, or from a cron/request handler); each call acquires at most
// one eligible run, dispatches one tick to its registered
// AdvanceHandler, classifies the returned TickOutcome, and releases the
// run atomically — folding in any signal that arrived while the
// handler was running, so a resumed run never loses input that raced
// the tick in flight.
package ocean
