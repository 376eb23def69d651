package config

import (
	"testing"
	"time"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []ServiceMode
		wantErr bool
	}{
		{name: "single", input: "http", want: []ServiceMode{ServiceModeHTTP}},
		{name: "both", input: "http,reaper", want: []ServiceMode{ServiceModeHTTP, ServiceModeReaper}},
		{name: "whitespace", input: " http , reaper ", want: []ServiceMode{ServiceModeHTTP, ServiceModeReaper}},
		{name: "empty", input: "", wantErr: true},
		{name: "invalid", input: "http,scheduler", wantErr: true},
		{name: "only commas", input: ",,", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseServices(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d services, want %d", len(got), len(tt.want))
			}
			for _, mode := range tt.want {
				if !got[mode] {
					t.Errorf("missing service %q", mode)
				}
			}
		})
	}
}

func TestSourceOfTruth_UnmarshalText(t *testing.T) {
	var s SourceOfTruth
	if err := s.UnmarshalText([]byte("PRIMARY")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != SourceOfTruthPrimary {
		t.Errorf("got %q, want primary", s)
	}
	if err := s.UnmarshalText([]byte("secondary")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != SourceOfTruthSecondary {
		t.Errorf("got %q, want secondary", s)
	}
	if err := s.UnmarshalText([]byte("bidirectional")); err == nil {
		t.Error("expected error for invalid source of truth")
	}
}

func TestSessionConfig_Sanitize(t *testing.T) {
	s := SessionConfig{TimeoutMS: 0, DialogTimeoutMS: 0}
	s.Sanitize()
	if s.TimeoutMS != 1800000 {
		t.Errorf("TimeoutMS = %d, want default 1800000", s.TimeoutMS)
	}
	if s.DialogTimeoutMS != 60000 {
		t.Errorf("DialogTimeoutMS = %d, want default 60000", s.DialogTimeoutMS)
	}
	if s.LivenessTTL != 5*time.Minute {
		t.Errorf("LivenessTTL = %v, want 5m", s.LivenessTTL)
	}

	// A dialog window at or above the timeout is clamped to half of it.
	s = SessionConfig{TimeoutMS: 10000, DialogTimeoutMS: 20000, LivenessTTL: time.Minute}
	s.Sanitize()
	if s.DialogTimeoutMS != 5000 {
		t.Errorf("DialogTimeoutMS = %d, want 5000", s.DialogTimeoutMS)
	}
}

func TestSessionConfig_Durations(t *testing.T) {
	s := SessionConfig{TimeoutMS: 1800000, DialogTimeoutMS: 60000}
	if s.Timeout() != 30*time.Minute {
		t.Errorf("Timeout = %v, want 30m", s.Timeout())
	}
	if s.WarningWindow() != time.Minute {
		t.Errorf("WarningWindow = %v, want 1m", s.WarningWindow())
	}
}

func TestReaperConfig_Sanitize(t *testing.T) {
	r := ReaperConfig{Interval: 0, BatchSize: 0}
	r.Sanitize()
	if r.Interval != 5*time.Minute {
		t.Errorf("Interval = %v, want 5m", r.Interval)
	}
	if r.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", r.BatchSize)
	}
}

func TestAppConfig_ServiceFlags(t *testing.T) {
	c := AppConfig{Services: "http,reaper"}
	if !c.IsHTTPServerEnabled() {
		t.Error("expected HTTP server enabled")
	}
	if !c.IsReaperEnabled() {
		t.Error("expected reaper enabled")
	}

	c = AppConfig{Services: "http"}
	if c.IsReaperEnabled() {
		t.Error("expected reaper disabled")
	}

	c = AppConfig{Services: "bogus"}
	if c.IsHTTPServerEnabled() {
		t.Error("invalid services string should disable everything")
	}
}
