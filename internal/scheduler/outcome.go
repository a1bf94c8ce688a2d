package scheduler

import (
	"github.com/erhathaway/ocean/internal/oceantypes"
	"github.com/erhathaway/ocean/internal/runstore"
)

// backoffCapMs is the ceiling backoff imposes regardless of attempt
// count (spec §4.7).
const backoffCapMs = 60_000

// backoff computes the retry delay for the nth attempt:
// min(1000*2^n, 60000) milliseconds.
func backoff(n int) int64 {
	if n <= 0 {
		return 1000
	}
	ms := int64(1000)
	for i := 0; i < n; i++ {
		ms *= 2
		if ms >= backoffCapMs {
			return backoffCapMs
		}
	}
	return ms
}

// applyOutcome maps one of the six outcome shapes to the release patch
// and terminal flag the "no signal landed" column of the outcome table
// describes (spec §4.7). runstore.Release folds in signal-detection on
// top of this atomically; applyOutcome only needs to describe what
// happens absent a signal.
func applyOutcome(run *oceantypes.Run, outcome oceantypes.Outcome, now int64) (runstore.Patch, bool) {
	switch outcome.Status {
	case oceantypes.OutcomeOK:
		return runstore.Patch{
			Status:  oceantypes.StatusIdle,
			Attempt: 0,
		}, false

	case oceantypes.OutcomeDone:
		return runstore.Patch{
			Status:  oceantypes.StatusDone,
			Attempt: 0,
		}, true

	case oceantypes.OutcomeContinue:
		return runstore.Patch{
			Status:       oceantypes.StatusPending,
			Attempt:      0,
			PendingInput: outcome.Input,
			HasPending:   true,
		}, false

	case oceantypes.OutcomeWait:
		wakeAt := outcome.WakeAt
		return runstore.Patch{
			Status:  oceantypes.StatusWaiting,
			Attempt: 0,
			WakeAt:  &wakeAt,
		}, false

	case oceantypes.OutcomeRetry:
		attempt := run.Attempt + 1
		errMsg := outcome.Error
		if attempt >= run.MaxAttempts {
			return runstore.Patch{
				Status:    oceantypes.StatusFailed,
				Attempt:   attempt,
				LastError: &errMsg,
			}, true
		}
		wakeAt := now + backoff(attempt)
		return runstore.Patch{
			Status:       oceantypes.StatusWaiting,
			Attempt:      attempt,
			WakeAt:       &wakeAt,
			LastError:    &errMsg,
			PendingInput: run.PendingInput,
			HasPending:   true,
		}, false

	case oceantypes.OutcomeFailed:
		errMsg := outcome.Error
		return runstore.Patch{
			Status:    oceantypes.StatusFailed,
			Attempt:   run.Attempt,
			LastError: &errMsg,
		}, true

	default:
		errMsg := "unknown outcome status: " + string(outcome.Status)
		return runstore.Patch{
			Status:    oceantypes.StatusFailed,
			Attempt:   run.Attempt,
			LastError: &errMsg,
		}, true
	}
}
