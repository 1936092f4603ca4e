package clock

import (
	"sync"
	"time"
)

// Clock provides the wall time used for catalog timestamps (created_at,
// deleted_at, to_delete, retention cutoffs).
type Clock interface {
	Now() time.Time
}

// SystemClock reads the OS clock but never steps backwards: successive
// calls return strictly increasing nanosecond values even across NTP
// adjustments.
type SystemClock struct {
	mu     sync.Mutex
	lastNs int64
}

// NewSystemClock creates a monotonic wall clock.
func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

func (c *SystemClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UnixNano()
	if now <= c.lastNs {
		now = c.lastNs + 1
	}
	c.lastNs = now
	return time.Unix(0, now)
}

// MockClock is a settable clock for tests.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock creates a clock frozen at the given instant.
func NewMockClock(now time.Time) *MockClock {
	return &MockClock{now: now}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to the given instant.
func (c *MockClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Advance moves the clock forward by d.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
