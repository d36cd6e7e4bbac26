// Package clockwork tracks monotonic uptime alongside wall-clock time and
// the pre-sync -> absolute time mapping the transaction engine needs to
// rewrite uptime-stamped records once the CSMS or NTP source tells it what
// time it actually is.
package clockwork

import (
	"sync"
	"time"
)

// Clock is the single time source shared by the transaction engine, the
// journal, and metering. It is safe for concurrent use, but in practice is
// only ever touched from the host's loop goroutine plus the occasional
// reader from an operator/status endpoint.
type Clock struct {
	mu        sync.RWMutex
	start     time.Time // process start, for uptime math
	now       func() time.Time
	unixKnown bool
	syncedAt  time.Time // uptime at the moment Set was called
	syncedTo  time.Time // absolute time that corresponded to syncedAt
}

// New creates a Clock anchored at the given process-start instant. Tests
// construct a Clock directly with a fake `now` func; production code uses
// NewReal.
func New(start time.Time, now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{start: start, now: now}
}

// NewReal creates a Clock anchored at the real process start time.
func NewReal() *Clock {
	return New(time.Now(), time.Now)
}

// Uptime returns the monotonic duration since the clock was created.
func (c *Clock) Uptime() time.Duration {
	return c.now().Sub(c.start)
}

// IsUnixTimeKnown reports whether the clock has been synced to an absolute
// wall-clock time by the CSMS, NTP, or another authoritative source.
func (c *Clock) IsUnixTimeKnown() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.unixKnown
}

// Set anchors the clock to an absolute time as of right now. Every
// subsequent call to Now (and every past uptime passed to Resolve) is
// computed relative to this anchor.
func (c *Clock) Set(absolute time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncedAt = c.now()
	c.syncedTo = absolute
	c.unixKnown = true
}

// Now returns the current absolute time. Callers must check
// IsUnixTimeKnown first; calling Now before a sync returns the zero
// time.Time, which is not meaningful as a wall-clock value.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.unixKnown {
		return time.Time{}
	}
	return c.syncedTo.Add(c.now().Sub(c.syncedAt))
}

// Resolve maps an uptime stamp recorded before the clock was known to an
// absolute time, using the sync anchor. It returns ok=false if the clock
// has never been synced.
func (c *Clock) Resolve(uptime time.Duration) (t time.Time, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.unixKnown {
		return time.Time{}, false
	}
	syncedUptime := c.syncedAt.Sub(c.start)
	delta := uptime - syncedUptime
	return c.syncedTo.Add(delta), true
}

// Stamp is either an absolute time (wall-clock known at the moment of
// capture) or an uptime duration (wall-clock unknown at capture time).
// Records in the journal use Stamp so they can be rewritten in place once
// the clock syncs, per spec's pre-boot transaction handling.
type Stamp struct {
	Absolute time.Time
	Uptime   time.Duration
	IsAbsolute bool
}

// Capture records the current instant, preferring wall-clock if known.
func (c *Clock) Capture() Stamp {
	if c.IsUnixTimeKnown() {
		return Stamp{Absolute: c.Now(), IsAbsolute: true}
	}
	return Stamp{Uptime: c.Uptime()}
}

// Resolved returns the stamp's absolute time, resolving an uptime stamp
// against the clock if necessary. ok is false only for an uptime stamp
// captured before any sync has occurred.
func (s Stamp) Resolved(c *Clock) (time.Time, bool) {
	if s.IsAbsolute {
		return s.Absolute, true
	}
	return c.Resolve(s.Uptime)
}
