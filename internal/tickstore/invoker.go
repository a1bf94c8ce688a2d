// Package tickstore implements the per-tick, per-adapter storage
// surface: the four-scope storage engine (global, session, run, tick
// rows), the RBW ledger, and the once-per-tick read/write budget (spec
// §4.2, §4.3). An Invoker is the unit of budget and ledger isolation;
// the scheduler mints one per adapter per tick, and the dispatcher mints
// a fresh one (new budget, empty ledger) for every peer call.
package tickstore

import (
	"database/sql"
	"sync"

	"github.com/erhathaway/ocean/internal/oceanclock"
	"github.com/erhathaway/ocean/internal/oceantypes"
)

// Invoker is bound to one clogId and one tick context, with its own
// read/write-once budget and RBW ledger.
type Invoker struct {
	db      *sql.DB
	clock   oceanclock.Func
	clogID  string
	tickCtx oceantypes.TickContext
	ledger  *ledger

	mu          sync.Mutex
	readCalled  bool
	writeCalled bool
}

// Factory mints fresh Invokers sharing a tick context but not a budget
// or ledger — the mechanism behind "peers share ticks but not budgets"
// (spec §4.5, §9 "Fresh peer budgets through a factory").
type Factory struct {
	db      *sql.DB
	clock   oceanclock.Func
	tickCtx oceantypes.TickContext
}

// NewFactory builds a Factory closed over one tick's shared context.
func NewFactory(db *sql.DB, clock oceanclock.Func, tickCtx oceantypes.TickContext) *Factory {
	return &Factory{db: db, clock: clock, tickCtx: tickCtx}
}

// For returns a fresh Invoker bound to clogID, with a zeroed budget and
// an empty ledger.
func (f *Factory) For(clogID string) *Invoker {
	return &Invoker{
		db:      f.db,
		clock:   f.clock,
		clogID:  clogID,
		tickCtx: f.tickCtx,
		ledger:  newLedger(),
	}
}
