package alert

import (
	"sync"
	"time"
)

// CooldownTracker suppresses repeat alerts for a parameter inside a global
// cooldown window. The zero last-fire time means a parameter's first
// violation always fires. State is process-local; a restart clears all
// cooldowns, which for an emergency-alerting system errs on the side of
// re-notifying.
type CooldownTracker struct {
	window time.Duration

	mu        sync.Mutex
	lastFired map[string]time.Time
}

// NewCooldownTracker creates a tracker with the given suppression window.
func NewCooldownTracker(window time.Duration) *CooldownTracker {
	return &CooldownTracker{
		window:    window,
		lastFired: make(map[string]time.Time),
	}
}

// CanFire reports whether the cooldown window has elapsed since the
// parameter last fired.
func (c *CooldownTracker) CanFire(parameter string, now time.Time) bool {
	c.mu.Lock()
	last := c.lastFired[parameter]
	c.mu.Unlock()
	return now.Sub(last) > c.window
}

// MarkFired records now as the parameter's last fire time, unconditionally
// overwriting any previous value.
func (c *CooldownTracker) MarkFired(parameter string, now time.Time) {
	c.mu.Lock()
	c.lastFired[parameter] = now
	c.mu.Unlock()
}

// TryFire atomically checks the cooldown and, when clear, marks the
// parameter fired. Exactly one of any set of concurrent callers wins, so
// overlapping evaluations of the same parameter cannot double-fire.
func (c *CooldownTracker) TryFire(parameter string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.lastFired[parameter]) <= c.window {
		return false
	}
	c.lastFired[parameter] = now
	return true
}

// LastFired returns the parameter's last fire time; the zero time when it
// has never fired.
func (c *CooldownTracker) LastFired(parameter string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFired[parameter]
}
