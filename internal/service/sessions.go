package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	domainauth "github.com/brokerhaus/portal-api/internal/domain/auth"
	apperrors "github.com/brokerhaus/portal-api/internal/errors"
	"github.com/brokerhaus/portal-api/internal/ports"
)

// defaultLivenessTTL bounds how long gatekeeper claims stay cached
// before the next request revalidates against the session store.
const defaultLivenessTTL = 5 * time.Minute

// Liveness is the lightweight session check result consumed by the
// request gatekeeper and the edge validation endpoint.
type Liveness struct {
	Valid    bool
	UserID   string
	Roles    domainauth.RoleClaims
	IsOnline bool

	// ExpiresAt is the session's hard expiry; cache entries derived from
	// this result must not outlive it.
	ExpiresAt time.Time
}

// SessionServiceOptions groups dependencies for SessionService.
type SessionServiceOptions struct {
	Sessions    ports.SessionStore // Required: session store
	Profiles    ports.ProfileStore // Required: user directory
	Identity    *IdentityService   // Required: identity service for merged reads
	Cache       ports.ClaimsCache  // Optional: claims fast path
	LivenessTTL time.Duration      // Optional: cache TTL, defaults to 5m
	Logger      *slog.Logger       // Optional: structured logger
	Now         func() time.Time   // Optional: clock, defaults to time.Now
}

// SessionService validates device sessions. ValidateSession is the
// authoritative check used by login-adjacent flows; ValidateToken and
// CheckLiveness are the lighter claim-oriented checks used at the edge.
type SessionService struct {
	sessions    ports.SessionStore
	profiles    ports.ProfileStore
	identity    *IdentityService
	cache       ports.ClaimsCache
	livenessTTL time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewSessionService constructs a new SessionService.
func NewSessionService(opts SessionServiceOptions) (*SessionService, error) {
	if opts.Sessions == nil {
		return nil, errors.New("SessionStore is required")
	}
	if opts.Profiles == nil {
		return nil, errors.New("ProfileStore is required")
	}
	if opts.Identity == nil {
		return nil, errors.New("IdentityService is required")
	}

	livenessTTL := opts.LivenessTTL
	if livenessTTL <= 0 {
		livenessTTL = defaultLivenessTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "session_service")
	}

	return &SessionService{
		sessions:    opts.Sessions,
		profiles:    opts.Profiles,
		identity:    opts.Identity,
		cache:       opts.Cache,
		livenessTTL: livenessTTL,
		logger:      logger,
		now:         now,
	}, nil
}

// ValidateSession runs the full validation chain for a session token and
// returns the owning user's merged profile. Checks run in order and the
// first failure wins: the record must exist, be active, be unexpired, and
// the owning user must pass the lifecycle state check. On success the
// activity stamp on both the session and the user is refreshed
// best-effort; a failed stamp never invalidates a valid session.
func (s *SessionService) ValidateSession(ctx context.Context, token string) (domainauth.UserProfile, error) {
	sess, err := s.checkSessionRecord(ctx, token)
	if err != nil {
		return domainauth.UserProfile{}, err
	}

	profile, err := s.identity.GetUser(ctx, sess.UserID)
	if err != nil {
		return domainauth.UserProfile{}, err
	}
	if stateErr := UserStateError(profile); stateErr != nil {
		return domainauth.UserProfile{}, stateErr
	}

	now := s.now().UTC()
	if touchErr := s.sessions.Touch(ctx, token, now); touchErr != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to stamp session activity", "error", touchErr)
	}
	if actErr := s.profiles.UpdateActivity(ctx, sess.UserID, true, time.Time{}, now, token); actErr != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to stamp user activity", "uid", sess.UserID, "error", actErr)
	}

	profile.SessionID = token
	return profile, nil
}

// ValidateToken is the claim-oriented check behind the edge validation
// endpoint. It always consults the session store, then the directory row
// only, skipping the identity backend round-trip.
func (s *SessionService) ValidateToken(ctx context.Context, token string) (Liveness, error) {
	sess, err := s.checkSessionRecord(ctx, token)
	if err != nil {
		return Liveness{}, err
	}

	profile, err := s.profiles.Get(ctx, sess.UserID)
	if err != nil {
		return Liveness{}, err
	}
	if stateErr := UserStateError(profile); stateErr != nil {
		return Liveness{}, stateErr
	}

	return Liveness{
		Valid:     true,
		UserID:    sess.UserID,
		Roles:     profile.Roles,
		IsOnline:  profile.IsOnline,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

// CheckLiveness is the gatekeeper fast path: cached claims when present,
// otherwise a full ValidateToken whose claims are cached for the next
// request. The cache TTL never exceeds the session's remaining life.
func (s *SessionService) CheckLiveness(ctx context.Context, token string) (domainauth.RoleClaims, bool, error) {
	if s.cache != nil {
		claims, ok, err := s.cache.Get(ctx, token)
		if err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "claims cache read failed", "error", err)
		}
		if ok {
			return claims, true, nil
		}
	}

	liveness, err := s.ValidateToken(ctx, token)
	if err != nil {
		if isAppFailure(err) {
			return domainauth.RoleClaims{}, false, nil
		}
		return domainauth.RoleClaims{}, false, err
	}

	if s.cache != nil {
		if putErr := s.cacheClaims(ctx, token, liveness.Roles, liveness.ExpiresAt); putErr != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "claims cache write failed", "error", putErr)
		}
	}
	return liveness.Roles, true, nil
}

// InvalidateLiveness drops the cached claims for a token. Logout calls
// this for every session it deactivates so a stale fast path cannot
// outlive it.
func (s *SessionService) InvalidateLiveness(ctx context.Context, token string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, token)
}

// SeedLiveness primes the claims cache for a freshly created session.
// expiresAt is the session's hard expiry and bounds the cache entry.
func (s *SessionService) SeedLiveness(ctx context.Context, token string, claims domainauth.RoleClaims, expiresAt time.Time) error {
	if s.cache == nil {
		return nil
	}
	return s.cacheClaims(ctx, token, claims, expiresAt)
}

// cacheClaims writes a cache entry whose TTL is the liveness TTL capped
// at the session's remaining life. Sessions at or past their expiry are
// never cached.
func (s *SessionService) cacheClaims(ctx context.Context, token string, claims domainauth.RoleClaims, expiresAt time.Time) error {
	ttl := s.livenessTTL
	if remaining := expiresAt.Sub(s.now().UTC()); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return nil
	}
	return s.cache.Put(ctx, token, claims, ttl)
}

// checkSessionRecord applies the record-level rules: exists, active, not
// expired. Expired sessions are rejected, never deleted.
func (s *SessionService) checkSessionRecord(ctx context.Context, token string) (domainauth.SessionData, error) {
	if token == "" {
		return domainauth.SessionData{}, apperrors.InvalidSession("No session token provided")
	}

	sess, err := s.sessions.Get(ctx, token)
	if err != nil {
		if apperrors.IsUserNotFound(err) || apperrors.IsInvalidSession(err) {
			return domainauth.SessionData{}, apperrors.InvalidSession("Session not found")
		}
		return domainauth.SessionData{}, err
	}
	if !sess.IsActive {
		return domainauth.SessionData{}, apperrors.InvalidSession("Session is no longer active")
	}
	if sess.Expired(s.now().UTC()) {
		return domainauth.SessionData{}, apperrors.InvalidSession("Session has expired")
	}
	return sess, nil
}

// isAppFailure reports whether the error is an expected auth or business
// failure rather than an infrastructure problem. The gatekeeper treats
// the former as "not live" and lets the latter propagate.
func isAppFailure(err error) bool {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case apperrors.ErrCodeInternal, apperrors.ErrCodeTimeout, apperrors.ErrCodeCanceled:
		return false
	default:
		return true
	}
}
