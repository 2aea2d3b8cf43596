// Package clock provides index.Clock implementations.
package clock

import (
	"sync"
	"time"
)

// System reads the wall clock in UTC, truncated to milliseconds so persisted
// status times round-trip through every store unchanged.
type System struct{}

// Now returns the current time.
func (System) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Manual is a settable clock for tests and replays.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// Fixed returns a Manual clock set to t.
func Fixed(t time.Time) *Manual {
	return &Manual{now: t}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}
