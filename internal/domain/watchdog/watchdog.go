// Package watchdog models session inactivity as an explicit state
// machine. The browser polls the derived state and schedules a single
// wake-up instead of stacking interval timers; the server reuses the same
// rules when sweeping idle sessions.
package watchdog

import "time"

// State is the inactivity phase of a session.
type State string

const (
	// StateIdle means the session is within its activity window.
	StateIdle State = "idle"
	// StateWarning means the warning dialog should be showing; activity
	// pings are rejected in this phase so an open dialog cannot silently
	// reset the timeout it is warning about.
	StateWarning State = "warning"
	// StateExpired means the inactivity timeout has elapsed and the
	// session must be terminated.
	StateExpired State = "expired"
)

// Config holds the two windows driving the machine. WarningWindow is the
// span before expiry during which the countdown dialog shows.
type Config struct {
	SessionTimeout time.Duration
	WarningWindow  time.Duration
}

// Sanitize clamps nonsensical values: a zero timeout gets a safe default
// and the warning window never exceeds the timeout itself.
func (c *Config) Sanitize() {
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 30 * time.Minute
	}
	if c.WarningWindow <= 0 {
		c.WarningWindow = time.Minute
	}
	if c.WarningWindow > c.SessionTimeout {
		c.WarningWindow = c.SessionTimeout
	}
}

// StateAt derives the inactivity state from the last activity timestamp.
func (c Config) StateAt(lastActivity, now time.Time) State {
	elapsed := now.Sub(lastActivity)
	switch {
	case elapsed >= c.SessionTimeout:
		return StateExpired
	case elapsed >= c.SessionTimeout-c.WarningWindow:
		return StateWarning
	default:
		return StateIdle
	}
}

// Remaining returns the time left until expiry; zero once expired.
func (c Config) Remaining(lastActivity, now time.Time) time.Duration {
	left := c.SessionTimeout - now.Sub(lastActivity)
	if left < 0 {
		return 0
	}
	return left
}

// NextWakeup returns when the state next changes given no further
// activity: the warning boundary while idle, the expiry boundary while
// warning, and now once expired. Clients arm exactly one timer for this
// instant and recompute it after every observed activity.
func (c Config) NextWakeup(lastActivity, now time.Time) time.Time {
	switch c.StateAt(lastActivity, now) {
	case StateIdle:
		return lastActivity.Add(c.SessionTimeout - c.WarningWindow)
	case StateWarning:
		return lastActivity.Add(c.SessionTimeout)
	default:
		return now
	}
}

// AllowPing reports whether an activity ping may refresh the timestamp in
// the given state. Pings are suppressed while the warning dialog shows.
func AllowPing(s State) bool {
	return s == StateIdle
}
