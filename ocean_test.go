package ocean_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/erhathaway/ocean"
	"github.com/erhathaway/ocean/internal/oceanclock"
	"github.com/erhathaway/ocean/internal/oceantypes"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared&_pragma=foreign_keys(1)")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, ocean.Migrate(context.Background(), db))
	return db
}

func TestEngineEndToEndHappyPath(t *testing.T) {
	db := openTestDB(t)
	clk := oceanclock.NewTestClock(time.UnixMilli(1000))
	e := ocean.New(db, ocean.WithClock(clk.Func()), ocean.WithInstanceID("test-instance"))

	e.RegisterClog(ocean.Clog{
		ID: "greeter",
		Advance: func(ctx context.Context, input json.RawMessage, tools ocean.ToolInvoker, attempt int) (ocean.TickOutcome, error) {
			emitInput, _ := json.Marshal(struct {
				Scope   string          `json:"scope"`
				Type    string          `json:"type"`
				Payload json.RawMessage `json:"payload"`
			}{Scope: "run", Type: "greeted", Payload: input})
			if _, err := tools.Call(ctx, "ocean.events.emit", emitInput); err != nil {
				return ocean.TickOutcome{}, err
			}
			return ocean.OutcomeOKResult(), nil
		},
	})

	runID, err := e.CreateRun(context.Background(), "sess-1", "greeter", ocean.CreateRunOptions{
		Input: json.RawMessage(`{"name":"ocean"}`), HasInput: true, MaxAttempts: 3,
	})
	require.NoError(t, err)

	res, err := e.Advance(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Advanced)
	require.Equal(t, oceantypes.OutcomeOK, res.Results[0].Outcome)

	run, err := e.GetRun(context.Background(), runID)
	require.NoError(t, err)
	require.Equal(t, oceantypes.StatusIdle, run.Status)

	evs, err := e.ReadEvents(context.Background(), oceantypes.ScopeRun, "", runID, 0, 10)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	require.Equal(t, "greeted", evs[0].Type)
}

func TestDrainStopsWhenNothingEligible(t *testing.T) {
	db := openTestDB(t)
	clk := oceanclock.NewTestClock(time.UnixMilli(1000))
	e := ocean.New(db, ocean.WithClock(clk.Func()))

	calls := 0
	e.RegisterClog(ocean.Clog{
		ID: "counter",
		Advance: func(ctx context.Context, input json.RawMessage, tools ocean.ToolInvoker, attempt int) (ocean.TickOutcome, error) {
			calls++
			if calls < 3 {
				return ocean.OutcomeContinueResult(json.RawMessage(`{}`)), nil
			}
			return ocean.OutcomeDoneResult(json.RawMessage(`{"rounds":3}`)), nil
		},
	})

	_, err := e.CreateRun(context.Background(), "sess-1", "counter", ocean.CreateRunOptions{
		Input: json.RawMessage(`{}`), HasInput: true, MaxAttempts: 3,
	})
	require.NoError(t, err)

	rounds, err := ocean.Drain(context.Background(), e, 10)
	require.NoError(t, err)
	require.Equal(t, 3, rounds)
	require.Equal(t, 3, calls)
}

func TestSignalBeforeFirstAdvance(t *testing.T) {
	db := openTestDB(t)
	clk := oceanclock.NewTestClock(time.UnixMilli(1000))
	e := ocean.New(db, ocean.WithClock(clk.Func()))

	received := json.RawMessage(nil)
	e.RegisterClog(ocean.Clog{
		ID: "listener",
		Advance: func(ctx context.Context, input json.RawMessage, tools ocean.ToolInvoker, attempt int) (ocean.TickOutcome, error) {
			received = input
			return ocean.OutcomeOKResult(), nil
		},
	})

	runID, err := e.CreateRun(context.Background(), "sess-1", "listener", ocean.CreateRunOptions{})
	require.NoError(t, err)

	run, err := e.GetRun(context.Background(), runID)
	require.NoError(t, err)
	require.Equal(t, oceantypes.StatusIdle, run.Status)

	require.NoError(t, e.Signal(context.Background(), runID, json.RawMessage(`{"hello":"world"}`)))

	res, err := e.Advance(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Advanced)
	require.JSONEq(t, `{"hello":"world"}`, string(received))
}
