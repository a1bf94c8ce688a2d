package ocean

import (
	"time"

	"github.com/erhathaway/ocean/internal/oceanclock"
	"github.com/erhathaway/ocean/internal/oceanlog"
)

// config bundles every tunable an Option can set, with defaults filled
// in by New before any internal component is constructed.
type config struct {
	clock         oceanclock.Func
	log           oceanlog.Logger
	instanceID    string
	lockDuration  time.Duration
	gcMinInterval time.Duration
	eventTTL      time.Duration
}

func defaultConfig() config {
	return config{
		clock:         oceanclock.Real(),
		log:           oceanlog.Discard{},
		instanceID:    oceanclock.NewID("instance"),
		lockDuration:  30 * time.Second,
		gcMinInterval: 60 * time.Second,
		eventTTL:      0, // 0 disables event GC; callers opt in via WithEventTTL
	}
}

// Option configures an Engine at construction time.
type Option func(*config)

// WithLogger sets the structured logger the engine and scheduler use.
// Defaults to a no-op discard logger.
func WithLogger(log oceanlog.Logger) Option {
	return func(c *config) { c.log = log }
}

// WithClock replaces the time source for every timestamp the engine
// writes (run locks, wakeAt, event ts) and the backoff calculation.
// Defaults to the wall clock; tests should supply an
// oceanclock.TestClock's Func.
func WithClock(clock oceanclock.Func) Option {
	return func(c *config) { c.clock = clock }
}

// WithInstanceID sets the identifier this engine's Advance calls write
// as a run's lockedBy. Defaults to a random id; multi-process
// deployments should pass a stable identifier per process.
func WithInstanceID(id string) Option {
	return func(c *config) { c.instanceID = id }
}

// WithLockDuration sets how long an acquired run's lock is held before
// it is eligible for a stale-lock steal by another Advance caller.
// Defaults to 30s; adapters should keep ticks well under this.
func WithLockDuration(d time.Duration) Option {
	return func(c *config) { c.lockDuration = d }
}

// WithEventTTL enables the event log's GC sweep: GCEventsIfDue deletes
// events older than d once it runs. Zero (the default) disables GC
// entirely, keeping the log append-only forever.
func WithEventTTL(d time.Duration) Option {
	return func(c *config) { c.eventTTL = d }
}

// WithGCMinInterval bounds how often GCEventsIfDue actually sweeps,
// regardless of how often it is called. Defaults to 60s.
func WithGCMinInterval(d time.Duration) Option {
	return func(c *config) { c.gcMinInterval = d }
}
