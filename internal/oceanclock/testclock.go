package oceanclock

import (
	"sync"
	"time"
)

// TestClock is a manually-advanced Clock for deterministic tests,
// analogous to catrate's tests substituting timeNow with a closure over
// a mutable time.Time.
type TestClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewTestClock returns a TestClock starting at now.
func NewTestClock(now time.Time) *TestClock {
	return &TestClock{now: now}
}

// Func returns a Func bound to this TestClock.
func (c *TestClock) Func() Func {
	return func() time.Time {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.now
	}
}

// Advance moves the clock forward by d.
func (c *TestClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to an absolute time.
func (c *TestClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
