package ocean

import "context"

// Drain calls Advance repeatedly until it reports no eligible run
// (Advanced=0) or maxRounds is reached, whichever comes first. This is
// the "continue chain" driver a cron tick or a long-poll handler uses
// to flush whatever work has become eligible, bounding how much one
// external call can do in a single invocation (spec §4.6 "continue is
// just a loop the scheduler runs one iteration of at a time").
func Drain(ctx context.Context, e *Engine, maxRounds int) (rounds int, err error) {
	for rounds = 0; maxRounds <= 0 || rounds < maxRounds; rounds++ {
		res, err := e.Advance(ctx)
		if err != nil {
			return rounds, err
		}
		if res.Advanced == 0 {
			return rounds, nil
		}
		if err := ctx.Err(); err != nil {
			return rounds, err
		}
	}
	return rounds, nil
}
