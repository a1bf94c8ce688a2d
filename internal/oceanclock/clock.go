// Package oceanclock provides the monotonic wall-clock seam and the
// prefixed random identifier generator used throughout ocean.
//
// The seam mirrors the teacher's catrate package, which replaces
// time.Now and time.NewTicker with package vars (timeNow, timeNewTicker)
// so tests can substitute deterministic behavior. Here the seam is
// instance-scoped rather than global, so parallel tests do not share
// mutable state.
package oceanclock

import (
	"time"

	"github.com/google/uuid"
)

// Func returns the current time. NowMs is sugar for epoch milliseconds,
// which is the unit every durable timestamp field in ocean uses.
type Func func() time.Time

// Real is the default Clock, backed by time.Now.
func Real() Func { return time.Now }

// NowMs returns the current time, per fn, as epoch milliseconds.
func NowMs(fn Func) int64 {
	return fn().UnixMilli()
}

// NewID returns a prefixed random identifier, e.g. NewID("run") ->
// "run_3fa85f64-5717-4562-b3fc-2c963f66afa6". The random component is a
// UUIDv4; ocean never parses or compares its structure, only its
// uniqueness, so any sufficiently random generator would do, but uuid is
// what the pack's complete repos reach for (see DESIGN.md).
func NewID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
