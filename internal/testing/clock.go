package testing

import (
	"sync"
	"time"
)

// clockEpoch is where every fresh ManualClock starts: comfortably before
// the default term sheet's resale deadline, so flows run in-window unless
// a test moves the clock itself.
var clockEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// ManualClock is a ledger clock that only moves when a test tells it to.
// Resale deadlines are the main consumer: tests park the clock before the
// deadline, exercise a flow, then jump past it.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a clock parked at the epoch.
func NewManualClock() *ManualClock {
	return NewManualClockAt(clockEpoch)
}

// NewManualClockAt returns a clock parked at t.
func NewManualClockAt(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set jumps the clock to t. Moving backwards is allowed.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
