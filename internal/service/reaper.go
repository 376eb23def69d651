package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"time"

	"github.com/brokerhaus/portal-api/config"
	"github.com/brokerhaus/portal-api/internal/ports"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Sessions ports.SessionStore // Required: session store
	Profiles ports.ProfileStore // Required: user directory
	Config   config.ReaperConfig
	Logger   *slog.Logger     // Optional: structured logger
	Now      func() time.Time // Optional: clock, defaults to time.Now
}

// ReaperService is the server-side counterpart of the client watchdog: a
// background loop that deactivates sessions past their expiry and flips
// users with no remaining active session offline. Validation already
// rejects expired sessions lazily; the sweep keeps the store and the
// online flags honest for users who simply walked away.
type ReaperService struct {
	sessions ports.SessionStore
	profiles ports.ProfileStore
	config   config.ReaperConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Sessions == nil {
		return nil, errors.New("SessionStore is required")
	}
	if opts.Profiles == nil {
		return nil, errors.New("ProfileStore is required")
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
	}

	return &ReaperService{
		sessions: opts.Sessions,
		profiles: opts.Profiles,
		config:   opts.Config,
		logger:   logger,
		now:      now,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting session reaper", "interval", s.config.Interval)
	}

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Sweep immediately after jitter
	if _, err := s.Sweep(ctx); err != nil {
		s.logSweepError(err)
	}

	return s.runLoop(ctx, ticker)
}

// waitWithJitter adds a random delay up to 10% of the interval to prevent thundering herd.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// If crypto/rand fails, skip jitter rather than failing startup
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	// Use modulo on uint64 before converting to avoid overflow
	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
		// Graceful shutdown during jitter
	}
}

// runLoop runs the sweep loop until context is cancelled.
func (s *ReaperService) runLoop(ctx context.Context, ticker *time.Ticker) error {
	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "session reaper stopping", "reason", ctx.Err())
			}
			// Return nil on graceful shutdown to avoid treating it as a failure
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logSweepError(err)
				// Continue running despite errors
			}
		}
	}
}

// Sweep deactivates expired sessions in batches until none remain, then
// flips every affected user with no surviving active session offline.
// It returns the number of users swept offline.
func (s *ReaperService) Sweep(ctx context.Context) (int, error) {
	now := s.now().UTC()
	affected := make(map[string]bool)

	for {
		users, err := s.sessions.DeactivateExpired(ctx, now, s.config.BatchSize)
		if err != nil {
			return 0, err
		}
		if len(users) == 0 {
			break
		}
		for _, uid := range users {
			affected[uid] = true
		}
		// Check context between batches
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
	}

	offline := 0
	for uid := range affected {
		metrics, err := s.sessions.Metrics(ctx, uid)
		if err != nil {
			s.logSweepError(err)
			continue
		}
		if metrics.ActiveSessions > 0 {
			continue
		}
		if err := s.profiles.UpdateActivity(ctx, uid, false, time.Time{}, time.Time{}, ""); err != nil {
			s.logSweepError(err)
			continue
		}
		offline++
	}

	if len(affected) > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "expired sessions reaped",
			"users_affected", len(affected),
			"users_offline", offline,
		)
	}
	return offline, nil
}

func (s *ReaperService) logSweepError(err error) {
	if err == nil || s.logger == nil {
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.logger.Debug("sweep cancelled by context", "error", err)
		return
	}
	s.logger.Error("sweep failed", "error", err)
}
