package ledger

import "time"

// Clock supplies the monotonic ledger time used for deadline checks.
// Programs read it through the view, never directly, so tests can drive
// time manually.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock implementation used outside tests.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
