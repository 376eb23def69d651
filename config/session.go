package config

import "time"

// SessionConfig contains session lifetime and client watchdog configuration.
// SESSION_TIMEOUT and DIALOG_TIMEOUT are in milliseconds to match the
// values the browser watchdog consumes.
type SessionConfig struct {
	// TimeoutMS is the inactivity window before a session is considered
	// expired by the watchdog.
	TimeoutMS int `env:"SESSION_TIMEOUT" envDefault:"1800000"`

	// DialogTimeoutMS is how long the expiry warning dialog shows before
	// the session is treated as expired.
	DialogTimeoutMS int `env:"DIALOG_TIMEOUT" envDefault:"60000"`

	// LivenessTTL bounds how long gatekeeper claims stay cached before a
	// revalidation against the session store.
	LivenessTTL time.Duration `env:"SESSION_LIVENESS_TTL" envDefault:"5m"`
}

// Sanitize applies guardrails to session configuration values.
func (s *SessionConfig) Sanitize() {
	if s.TimeoutMS < 1000 {
		s.TimeoutMS = 1800000
	}
	if s.DialogTimeoutMS < 1000 {
		s.DialogTimeoutMS = 60000
	}
	if s.DialogTimeoutMS >= s.TimeoutMS {
		s.DialogTimeoutMS = s.TimeoutMS / 2
	}
	if s.LivenessTTL <= 0 {
		s.LivenessTTL = 5 * time.Minute
	}
}

// Timeout returns the inactivity window as a duration.
func (s SessionConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

// WarningWindow returns the warning dialog window as a duration.
func (s SessionConfig) WarningWindow() time.Duration {
	return time.Duration(s.DialogTimeoutMS) * time.Millisecond
}

// ReaperConfig contains session reaper configuration.
type ReaperConfig struct {
	// Interval is the sweep interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// BatchSize is the maximum number of sessions deactivated per statement.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"100"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	if r.Interval < time.Second {
		r.Interval = 5 * time.Minute
	}
	if r.BatchSize < 1 {
		r.BatchSize = 100
	}
}
