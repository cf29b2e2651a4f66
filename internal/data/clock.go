package data

import (
	"sync"
	"time"
)

// TimeProvider stamps job creation and update times.
type TimeProvider interface {
	Now() time.Time
}

// TimeProviderFunc adapts a function to TimeProvider.
type TimeProviderFunc func() time.Time

// Now calls f.
func (f TimeProviderFunc) Now() time.Time { return f() }

// SystemTime is the wall clock. Stores use it when no TimeProvider is configured.
var SystemTime TimeProvider = TimeProviderFunc(time.Now)

// ManualClock only moves when told to. It is safe for concurrent use.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a clock stopped at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

// Now returns the clock's current reading.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new reading.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
