package dispatch

import (
	cycle "github.com/joeycumines/go-detect-cycle/floyds"

	"github.com/erhathaway/ocean/internal/oceanerr"
)

// callChain tracks the clogId path a peer call (ocean.clog.call) has
// taken within one tick, using Floyd's-cycle-detection so a peer chain
// that loops back on itself (A calls B calls A) fails fast instead of
// recursing until the stack blows (spec §9, grounded on the teacher's
// sql/export dependency-cycle check).
type callChain struct {
	detector cycle.BranchingDetector
}

func newCallChain(rootClogID string) *callChain {
	return &callChain{detector: cycle.NewBranchingDetector(rootClogID, nil)}
}

// step extends the chain to nextClogID, returning the chain for the
// nested call, or a CLOG_CALL_CYCLE error if nextClogID already
// appears on the current path. Mirrors the teacher's dependencyCycle
// walk: advance with Hare, then check Ok() on the parent detector (the
// one Hare was called on), clearing the newly advanced detector if a
// cycle is reported, before recursing into the returned one.
func (c *callChain) step(nextClogID string) (*callChain, error) {
	nf := c.detector.Hare(nextClogID)
	ok := c.detector.Ok()
	if !ok {
		nf.Clear()
		return nil, oceanerr.New(oceanerr.CodeClogCallCycle,
			"peer call chain revisits clogId "+nextClogID, nil)
	}
	return &callChain{detector: nf}, nil
}
