// Package domaintest provides test doubles for the domain package.
package domaintest

import (
	"sync"
	"time"

	"github.com/aelexs/clinic-otp/internal/domain"
)

// FakeClock is a deterministic, advanceable clock for tests. It is safe for
// concurrent use, so the concurrent-verification tests can share one.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
}

// NewFakeClock creates a FakeClock set to the given time.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{current: t}
}

// Now returns the fake clock's current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the fake clock forward by the given duration.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// AdvancePast moves the clock to one millisecond after deadline, the
// smallest step at which a record expiring at deadline is expired in every
// backend. It never moves the clock backwards.
func (c *FakeClock) AdvancePast(deadline time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := deadline.Add(time.Millisecond)
	if next.After(c.current) {
		c.current = next
	}
}

// Set changes the fake clock to a specific time.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}

var _ domain.Clock = (*FakeClock)(nil)
