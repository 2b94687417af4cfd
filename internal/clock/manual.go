package clock

import (
	"sync"
	"time"
)

// Manual is a settable clock pinned to an instant, so tests produce
// byte-identical signatures.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual constructs a Manual clock starting at the supplied time.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start.UTC()}
}

// Now returns the pinned instant.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d and returns the new instant.
// Negative durations leave it unchanged.
func (m *Manual) Advance(d time.Duration) time.Time {
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}

// Set jumps the clock to an absolute instant. Instants before the
// current one are ignored so time never runs backwards.
func (m *Manual) Set(at time.Time) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	at = at.UTC()
	if at.After(m.now) {
		m.now = at
	}
	return m.now
}
