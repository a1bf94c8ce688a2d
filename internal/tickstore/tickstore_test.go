package tickstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/erhathaway/ocean/internal/oceanclock"
	"github.com/erhathaway/ocean/internal/oceanerr"
	"github.com/erhathaway/ocean/internal/oceantypes"
	"github.com/erhathaway/ocean/internal/schema"
	"github.com/erhathaway/ocean/internal/storedb"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared&_pragma=foreign_keys(1)")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, schema.Migrate(context.Background(), db))
	return db
}

func seedRunAndTick(t *testing.T, db *sql.DB, sessionID, runID, tickID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, storedb.EnsureSession(ctx, db, sessionID, 1000))
	require.NoError(t, storedb.InsertRun(ctx, db, oceantypes.Run{
		RunID: runID, SessionID: sessionID, ClogID: "clog-a", Status: oceantypes.StatusPending,
		MaxAttempts: 3, CreatedTs: 1000, UpdatedTs: 1000,
	}))
	require.NoError(t, storedb.InsertTickIgnore(ctx, db, runID, tickID, 1000))
}

func newTestInvoker(db *sql.DB, sessionID, runID, tickID string) *Invoker {
	clk := oceanclock.NewTestClock(time.Unix(1000, 0))
	f := NewFactory(db, clk.Func(), oceantypes.TickContext{
		RunID: runID, TickID: tickID, SessionID: sessionID, ClogID: "clog-a",
	})
	return f.For("clog-a")
}

func TestReadThenWriteRoundTrip(t *testing.T) {
	db := openTestDB(t)
	seedRunAndTick(t, db, "sess-1", "run-1", "tick-1")
	inv := newTestInvoker(db, "sess-1", "run-1", "tick-1")
	ctx := context.Background()

	_, err := inv.ReadScoped(ctx, []ReadPlan{
		{Kind: PlanGlobal},
		{Kind: PlanRun, RunID: "run-1"},
		{Kind: PlanTickRows, RunID: "run-1", TickID: "tick-1", RowIDs: []string{"msg-1"}},
	})
	require.NoError(t, err)

	n, err := inv.WriteScoped(ctx, []WriteOp{
		{Kind: OpGlobalSet, Value: json.RawMessage(`{"g":1}`)},
		{Kind: OpRunSet, RunID: "run-1", Value: json.RawMessage(`{"r":1}`)},
		{Kind: OpTickSet, RunID: "run-1", TickID: "tick-1", RowID: "msg-1", Value: json.RawMessage(`{"text":"hi"}`)},
	})
	require.NoError(t, err)
	require.Equal(t, 3, n)

	v, err := storedb.GetRunStorage(ctx, db, "clog-a", "run-1")
	require.NoError(t, err)
	require.JSONEq(t, `{"r":1}`, string(v))
}

func TestWriteWithoutReadFails(t *testing.T) {
	db := openTestDB(t)
	seedRunAndTick(t, db, "sess-1", "run-1", "tick-1")
	inv := newTestInvoker(db, "sess-1", "run-1", "tick-1")
	ctx := context.Background()

	_, err := inv.WriteScoped(ctx, []WriteOp{{Kind: OpGlobalSet, Value: json.RawMessage(`1`)}})
	require.Error(t, err)
	code, ok := oceanerr.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, oceanerr.CodeStorageWriteBeforeRead, code)
}

func TestWriteUnreadRowFailsRBW(t *testing.T) {
	db := openTestDB(t)
	seedRunAndTick(t, db, "sess-1", "run-1", "tick-1")
	inv := newTestInvoker(db, "sess-1", "run-1", "tick-1")
	ctx := context.Background()

	_, err := inv.ReadScoped(ctx, []ReadPlan{{Kind: PlanGlobal}})
	require.NoError(t, err)

	_, err = inv.WriteScoped(ctx, []WriteOp{
		{Kind: OpRunSet, RunID: "run-1", Value: json.RawMessage(`1`)},
	})
	require.Error(t, err)
	code, ok := oceanerr.CodeOf(err)
	require.True(t, ok)
	require.Equal(t, oceanerr.CodeRBWViolation, code)
}

func TestReadTwiceFails(t *testing.T) {
	db := openTestDB(t)
	seedRunAndTick(t, db, "sess-1", "run-1", "tick-1")
	inv := newTestInvoker(db, "sess-1", "run-1", "tick-1")
	ctx := context.Background()

	_, err := inv.ReadScoped(ctx, []ReadPlan{{Kind: PlanGlobal}})
	require.NoError(t, err)
	_, err = inv.ReadScoped(ctx, []ReadPlan{{Kind: PlanGlobal}})
	require.Error(t, err)
	code, _ := oceanerr.CodeOf(err)
	require.Equal(t, oceanerr.CodeStorageReadAlreadyCalled, code)
}

func TestWriteTwiceFails(t *testing.T) {
	db := openTestDB(t)
	seedRunAndTick(t, db, "sess-1", "run-1", "tick-1")
	inv := newTestInvoker(db, "sess-1", "run-1", "tick-1")
	ctx := context.Background()

	_, err := inv.ReadScoped(ctx, []ReadPlan{{Kind: PlanGlobal}})
	require.NoError(t, err)
	_, err = inv.WriteScoped(ctx, []WriteOp{{Kind: OpGlobalSet, Value: json.RawMessage(`1`)}})
	require.NoError(t, err)
	_, err = inv.WriteScoped(ctx, []WriteOp{{Kind: OpGlobalClear}})
	require.Error(t, err)
	code, _ := oceanerr.CodeOf(err)
	require.Equal(t, oceanerr.CodeStorageWriteAlreadyCalled, code)
}

func TestOutOfScopeSessionPlanFails(t *testing.T) {
	db := openTestDB(t)
	seedRunAndTick(t, db, "sess-1", "run-1", "tick-1")
	inv := newTestInvoker(db, "sess-1", "run-1", "tick-1")
	ctx := context.Background()

	_, err := inv.ReadScoped(ctx, []ReadPlan{{Kind: PlanSession, SessionID: "sess-other"}})
	require.Error(t, err)
	code, _ := oceanerr.CodeOf(err)
	require.Equal(t, oceanerr.CodeInvalidScope, code)
}

func TestClearUnpersistedButReadRowIsValid(t *testing.T) {
	db := openTestDB(t)
	seedRunAndTick(t, db, "sess-1", "run-1", "tick-1")
	inv := newTestInvoker(db, "sess-1", "run-1", "tick-1")
	ctx := context.Background()

	_, err := inv.ReadScoped(ctx, []ReadPlan{
		{Kind: PlanTickRows, RunID: "run-1", TickID: "tick-1", RowIDs: []string{"never-written"}},
	})
	require.NoError(t, err)

	n, err := inv.WriteScoped(ctx, []WriteOp{
		{Kind: OpTickDel, RunID: "run-1", TickID: "tick-1", RowID: "never-written"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestPeerInvokerHasIndependentBudget(t *testing.T) {
	db := openTestDB(t)
	seedRunAndTick(t, db, "sess-1", "run-1", "tick-1")
	clk := oceanclock.NewTestClock(time.Unix(1000, 0))
	factory := NewFactory(db, clk.Func(), oceantypes.TickContext{
		RunID: "run-1", TickID: "tick-1", SessionID: "sess-1", ClogID: "clog-a",
	})
	ctx := context.Background()

	a := factory.For("clog-a")
	_, err := a.ReadScoped(ctx, []ReadPlan{{Kind: PlanGlobal}})
	require.NoError(t, err)

	b := factory.For("clog-b")
	_, err = b.ReadScoped(ctx, []ReadPlan{{Kind: PlanGlobal}})
	require.NoError(t, err, "a peer invoker must have its own fresh read budget")
}
