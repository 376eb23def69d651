package watchdog

import (
	"testing"
	"time"
)

func TestConfig_Sanitize(t *testing.T) {
	tests := []struct {
		name        string
		in          Config
		wantTimeout time.Duration
		wantWarning time.Duration
	}{
		{
			name:        "zero values get defaults",
			in:          Config{},
			wantTimeout: 30 * time.Minute,
			wantWarning: time.Minute,
		},
		{
			name:        "warning clamped to timeout",
			in:          Config{SessionTimeout: time.Minute, WarningWindow: 5 * time.Minute},
			wantTimeout: time.Minute,
			wantWarning: time.Minute,
		},
		{
			name:        "sane values untouched",
			in:          Config{SessionTimeout: 10 * time.Minute, WarningWindow: 30 * time.Second},
			wantTimeout: 10 * time.Minute,
			wantWarning: 30 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.in
			c.Sanitize()
			if c.SessionTimeout != tt.wantTimeout {
				t.Errorf("SessionTimeout = %v, want %v", c.SessionTimeout, tt.wantTimeout)
			}
			if c.WarningWindow != tt.wantWarning {
				t.Errorf("WarningWindow = %v, want %v", c.WarningWindow, tt.wantWarning)
			}
		})
	}
}

func TestStateAt(t *testing.T) {
	c := Config{SessionTimeout: 10 * time.Minute, WarningWindow: time.Minute}
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		elapsed time.Duration
		want    State
	}{
		{name: "fresh activity", elapsed: 0, want: StateIdle},
		{name: "mid window", elapsed: 5 * time.Minute, want: StateIdle},
		{name: "just before warning", elapsed: 9*time.Minute - time.Second, want: StateIdle},
		{name: "warning boundary", elapsed: 9 * time.Minute, want: StateWarning},
		{name: "inside warning", elapsed: 9*time.Minute + 30*time.Second, want: StateWarning},
		{name: "expiry boundary", elapsed: 10 * time.Minute, want: StateExpired},
		{name: "long gone", elapsed: time.Hour, want: StateExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.StateAt(base, base.Add(tt.elapsed)); got != tt.want {
				t.Errorf("StateAt(+%v) = %v, want %v", tt.elapsed, got, tt.want)
			}
		})
	}
}

func TestRemaining(t *testing.T) {
	c := Config{SessionTimeout: 10 * time.Minute, WarningWindow: time.Minute}
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if got := c.Remaining(base, base.Add(4*time.Minute)); got != 6*time.Minute {
		t.Errorf("Remaining = %v, want 6m", got)
	}
	if got := c.Remaining(base, base.Add(time.Hour)); got != 0 {
		t.Errorf("Remaining past expiry = %v, want 0", got)
	}
}

func TestNextWakeup(t *testing.T) {
	c := Config{SessionTimeout: 10 * time.Minute, WarningWindow: time.Minute}
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Idle: next change is the warning boundary.
	if got := c.NextWakeup(base, base); !got.Equal(base.Add(9 * time.Minute)) {
		t.Errorf("idle NextWakeup = %v, want warning boundary", got)
	}

	// Warning: next change is expiry.
	now := base.Add(9*time.Minute + 10*time.Second)
	if got := c.NextWakeup(base, now); !got.Equal(base.Add(10 * time.Minute)) {
		t.Errorf("warning NextWakeup = %v, want expiry boundary", got)
	}

	// Expired: no future transition.
	now = base.Add(time.Hour)
	if got := c.NextWakeup(base, now); !got.Equal(now) {
		t.Errorf("expired NextWakeup = %v, want now", got)
	}
}

func TestAllowPing(t *testing.T) {
	if !AllowPing(StateIdle) {
		t.Error("idle should allow pings")
	}
	if AllowPing(StateWarning) {
		t.Error("warning must reject pings")
	}
	if AllowPing(StateExpired) {
		t.Error("expired must reject pings")
	}
}
