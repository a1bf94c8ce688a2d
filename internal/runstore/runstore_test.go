package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/erhathaway/ocean/internal/oceanclock"
	"github.com/erhathaway/ocean/internal/oceantypes"
	"github.com/erhathaway/ocean/internal/schema"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared&_pragma=foreign_keys(1)")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, schema.Migrate(context.Background(), db))
	return db
}

func TestCreateRunIdleVsPending(t *testing.T) {
	db := openTestDB(t)
	clk := oceanclock.NewTestClock(time.Unix(1000, 0))
	s := &Store{Clock: clk.Func()}
	ctx := context.Background()

	idleID, err := s.CreateRun(ctx, db, "sess-1", "clog-a", CreateOptions{})
	require.NoError(t, err)
	idle, err := s.GetRun(ctx, db, idleID)
	require.NoError(t, err)
	require.Equal(t, oceantypes.StatusIdle, idle.Status)

	pendingID, err := s.CreateRun(ctx, db, "sess-1", "clog-a", CreateOptions{
		HasInput: true, Input: json.RawMessage(`{"msg":"hi"}`),
	})
	require.NoError(t, err)
	pending, err := s.GetRun(ctx, db, pendingID)
	require.NoError(t, err)
	require.Equal(t, oceantypes.StatusPending, pending.Status)
	require.JSONEq(t, `{"msg":"hi"}`, string(pending.PendingInput))
}

func TestAcquireIsExclusive(t *testing.T) {
	db := openTestDB(t)
	clk := oceanclock.NewTestClock(time.Unix(1000, 0))
	s := &Store{Clock: clk.Func()}
	ctx := context.Background()

	runID, err := s.CreateRun(ctx, db, "sess-1", "clog-a", CreateOptions{
		HasInput: true, Input: json.RawMessage(`"go"`),
	})
	require.NoError(t, err)

	a, err := s.Acquire(ctx, db, "instance-a", 30000)
	require.NoError(t, err)
	require.NotNil(t, a)
	require.Equal(t, runID, a.RunID)

	b, err := s.Acquire(ctx, db, "instance-b", 30000)
	require.NoError(t, err)
	require.Nil(t, b, "a second acquirer must not see the already-locked run")

	got, err := s.GetRun(ctx, db, runID)
	require.NoError(t, err)
	require.Equal(t, oceantypes.StatusActive, got.Status, "a held lock displays as active")
}

func TestAcquireStealsExpiredLock(t *testing.T) {
	db := openTestDB(t)
	clk := oceanclock.NewTestClock(time.Unix(1000, 0))
	s := &Store{Clock: clk.Func()}
	ctx := context.Background()

	runID, err := s.CreateRun(ctx, db, "sess-1", "clog-a", CreateOptions{
		HasInput: true, Input: json.RawMessage(`"go"`),
	})
	require.NoError(t, err)

	_, err = s.Acquire(ctx, db, "instance-a", 1000)
	require.NoError(t, err)

	clk.Advance(2 * time.Second)

	b, err := s.Acquire(ctx, db, "instance-b", 30000)
	require.NoError(t, err)
	require.NotNil(t, b, "an expired lock must be stealable")
	require.Equal(t, runID, b.RunID)
}

func TestSignalOnWaitingPromotesToPending(t *testing.T) {
	db := openTestDB(t)
	clk := oceanclock.NewTestClock(time.Unix(1000, 0))
	s := &Store{Clock: clk.Func()}
	ctx := context.Background()

	runID, err := s.CreateRun(ctx, db, "sess-1", "clog-a", CreateOptions{})
	require.NoError(t, err)

	wake := int64(5000)
	require.NoError(t, s.Release(ctx, db, runID, Patch{Status: oceantypes.StatusWaiting, WakeAt: &wake}, false))

	r, err := s.GetRun(ctx, db, runID)
	require.NoError(t, err)
	require.Equal(t, oceantypes.StatusWaiting, r.Status)

	require.NoError(t, s.Signal(ctx, db, runID, json.RawMessage(`"nudge"`)))

	r, err = s.GetRun(ctx, db, runID)
	require.NoError(t, err)
	require.Equal(t, oceantypes.StatusPending, r.Status)
	require.JSONEq(t, `"nudge"`, string(r.PendingInput))
}

func TestSignalOnTerminalIsNoOp(t *testing.T) {
	db := openTestDB(t)
	clk := oceanclock.NewTestClock(time.Unix(1000, 0))
	s := &Store{Clock: clk.Func()}
	ctx := context.Background()

	runID, err := s.CreateRun(ctx, db, "sess-1", "clog-a", CreateOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, db, runID, Patch{Status: oceantypes.StatusDone}, true))

	require.NoError(t, s.Signal(ctx, db, runID, json.RawMessage(`"too late"`)))

	r, err := s.GetRun(ctx, db, runID)
	require.NoError(t, err)
	require.Equal(t, oceantypes.StatusDone, r.Status)
	require.Nil(t, r.PendingInput)
}

func TestReleaseSignalDuringTickOverridesPatch(t *testing.T) {
	db := openTestDB(t)
	clk := oceanclock.NewTestClock(time.Unix(1000, 0))
	s := &Store{Clock: clk.Func()}
	ctx := context.Background()

	runID, err := s.CreateRun(ctx, db, "sess-1", "clog-a", CreateOptions{
		HasInput: true, Input: json.RawMessage(`"first"`),
	})
	require.NoError(t, err)

	_, err = s.Acquire(ctx, db, "instance-a", 30000)
	require.NoError(t, err)
	require.NoError(t, s.ConsumePendingInput(ctx, db, runID))

	// A signal lands mid-tick, after the handler already consumed input.
	require.NoError(t, s.Signal(ctx, db, runID, json.RawMessage(`"newer"`)))

	wake := int64(9000)
	lastErr := "boom"
	require.NoError(t, s.Release(ctx, db, runID, Patch{
		Status: oceantypes.StatusWaiting, WakeAt: &wake, LastError: &lastErr, Attempt: 2,
	}, false))

	r, err := s.GetRun(ctx, db, runID)
	require.NoError(t, err)
	require.Equal(t, oceantypes.StatusPending, r.Status, "a mid-tick signal wins over the release patch")
	require.Equal(t, 0, r.Attempt)
	require.Nil(t, r.WakeAt)
	require.Nil(t, r.LastError)
	require.JSONEq(t, `"newer"`, string(r.PendingInput))
	require.Nil(t, r.LockedBy)
}

func TestReleaseTerminalIgnoresSignal(t *testing.T) {
	db := openTestDB(t)
	clk := oceanclock.NewTestClock(time.Unix(1000, 0))
	s := &Store{Clock: clk.Func()}
	ctx := context.Background()

	runID, err := s.CreateRun(ctx, db, "sess-1", "clog-a", CreateOptions{
		HasInput: true, Input: json.RawMessage(`"first"`),
	})
	require.NoError(t, err)
	_, err = s.Acquire(ctx, db, "instance-a", 30000)
	require.NoError(t, err)
	require.NoError(t, s.ConsumePendingInput(ctx, db, runID))
	require.NoError(t, s.Signal(ctx, db, runID, json.RawMessage(`"ignored"`)))

	require.NoError(t, s.Release(ctx, db, runID, Patch{Status: oceantypes.StatusDone, Attempt: 0}, true))

	r, err := s.GetRun(ctx, db, runID)
	require.NoError(t, err)
	require.Equal(t, oceantypes.StatusDone, r.Status, "done is terminal even if a signal arrived mid-tick")
	require.Nil(t, r.PendingInput)
}

func TestReleaseRetryRestoresPendingInputWhenNoSignal(t *testing.T) {
	db := openTestDB(t)
	clk := oceanclock.NewTestClock(time.Unix(1000, 0))
	s := &Store{Clock: clk.Func()}
	ctx := context.Background()

	runID, err := s.CreateRun(ctx, db, "sess-1", "clog-a", CreateOptions{
		HasInput: true, Input: json.RawMessage(`"original"`),
	})
	require.NoError(t, err)
	_, err = s.Acquire(ctx, db, "instance-a", 30000)
	require.NoError(t, err)
	require.NoError(t, s.ConsumePendingInput(ctx, db, runID))

	wake := int64(7000)
	lastErr := "transient"
	require.NoError(t, s.Release(ctx, db, runID, Patch{
		Status: oceantypes.StatusWaiting, Attempt: 1, WakeAt: &wake, LastError: &lastErr,
		PendingInput: json.RawMessage(`"original"`), HasPending: true,
	}, false))

	r, err := s.GetRun(ctx, db, runID)
	require.NoError(t, err)
	require.Equal(t, oceantypes.StatusWaiting, r.Status)
	require.Equal(t, 1, r.Attempt)
	require.NotNil(t, r.WakeAt)
	require.Equal(t, wake, *r.WakeAt)
	require.JSONEq(t, `"original"`, string(r.PendingInput))
}

func TestDeleteSessionCascadesToRun(t *testing.T) {
	db := openTestDB(t)
	clk := oceanclock.NewTestClock(time.Unix(1000, 0))
	s := &Store{Clock: clk.Func()}
	ctx := context.Background()

	runID, err := s.CreateRun(ctx, db, "sess-1", "clog-a", CreateOptions{})
	require.NoError(t, err)
	require.NoError(t, s.DeleteSession(ctx, db, "sess-1"))

	r, err := s.GetRun(ctx, db, runID)
	require.NoError(t, err)
	require.Nil(t, r)
}
