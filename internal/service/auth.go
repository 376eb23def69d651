package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/brokerhaus/portal-api/internal/domain/auth"
	apperrors "github.com/brokerhaus/portal-api/internal/errors"
	"github.com/brokerhaus/portal-api/internal/ports"
)

// LoginRequest carries one login attempt.
type LoginRequest struct {
	Email      string
	Password   string
	RememberMe bool
	Device     domainauth.DeviceInfo
}

// LoginResult is a successful login: the merged profile enriched with the
// fresh session, plus the cookie material the handler needs.
type LoginResult struct {
	Profile   domainauth.UserProfile
	Token     string
	ExpiresAt time.Time
}

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Identity *IdentityService      // Required: identity service
	Sessions ports.SessionStore    // Required: session store
	Profiles ports.ProfileStore    // Required: user directory
	Backend  ports.IdentityBackend // Required: identity backend (sign-out)
	Liveness *SessionService       // Optional: claims cache seeding/invalidation

	// EnforceSingleSession rejects logins while another session is active
	// for users that do not allow multiple sessions.
	EnforceSingleSession bool

	Logger *slog.Logger     // Optional: structured logger
	Now    func() time.Time // Optional: clock, defaults to time.Now
}

// AuthService orchestrates the login and logout flows. A login attempt
// walks PRECHECK, AUTHENTICATE (role sync happens inside the identity
// service), SESSION_CREATE, and ACTIVITY_STAMP in order; any stage's
// failure short-circuits the attempt. The precheck validates account
// state before credentials are ever verified, so a blocked account
// learns nothing about password correctness.
type AuthService struct {
	identity             *IdentityService
	sessions             ports.SessionStore
	profiles             ports.ProfileStore
	backend              ports.IdentityBackend
	liveness             *SessionService
	enforceSingleSession bool
	logger               *slog.Logger
	now                  func() time.Time
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) (*AuthService, error) {
	if opts.Identity == nil {
		return nil, errors.New("IdentityService is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("SessionStore is required")
	}
	if opts.Profiles == nil {
		return nil, errors.New("ProfileStore is required")
	}
	if opts.Backend == nil {
		return nil, errors.New("IdentityBackend is required")
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "auth_service")
	}

	return &AuthService{
		identity:             opts.Identity,
		sessions:             opts.Sessions,
		profiles:             opts.Profiles,
		backend:              opts.Backend,
		liveness:             opts.Liveness,
		enforceSingleSession: opts.EnforceSingleSession,
		logger:               logger,
		now:                  now,
	}, nil
}

// Login runs one login attempt end to end.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	// PRECHECK: resolve by email and validate state before the password
	// is ever looked at. An unknown email reads as bad credentials.
	directory, err := s.profiles.GetByEmail(ctx, req.Email)
	if err != nil {
		if apperrors.IsUserNotFound(err) {
			return LoginResult{}, apperrors.InvalidCredentials("Invalid email or password")
		}
		return LoginResult{}, err
	}
	// The backend owns the verification flag, so the directory copy may
	// lag behind it. Verification is re-checked on the merged profile
	// after AUTHENTICATE; the other lifecycle flags are directory-owned
	// and reject here, before credentials are looked at.
	if stateErr := UserStateError(directory); stateErr != nil && !apperrors.IsEmailNotVerified(stateErr) {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "login rejected by account state",
				"uid", directory.UID,
				"code", string(apperrors.GetCode(stateErr)),
			)
		}
		return LoginResult{}, stateErr
	}

	metrics, err := s.sessions.Metrics(ctx, directory.UID)
	if err != nil {
		return LoginResult{}, err
	}
	if s.enforceSingleSession && !directory.AllowMultipleSessions && metrics.ActiveSessions > 0 {
		return LoginResult{}, apperrors.SessionConflict("Another session is already active")
	}

	// AUTHENTICATE: the identity service verifies credentials and has
	// already reconciled the role claim pair when it returns.
	profile, err := s.identity.Login(ctx, req.Email, req.Password)
	if err != nil {
		return LoginResult{}, err
	}
	if stateErr := UserStateError(profile); stateErr != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "login rejected by account state",
				"uid", profile.UID,
				"code", string(apperrors.GetCode(stateErr)),
			)
		}
		return LoginResult{}, stateErr
	}

	// SESSION_CREATE
	now := s.now().UTC()
	ttl := domainauth.SessionTTL
	if req.RememberMe {
		ttl = domainauth.SessionTTLRememberMe
	}
	sess := domainauth.SessionData{
		Token:        generateSessionToken(),
		UserID:       profile.UID,
		Device:       req.Device,
		CreatedAt:    now,
		LastActivity: now,
		IsActive:     true,
		ExpiresAt:    now.Add(ttl),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return LoginResult{}, err
	}

	// ACTIVITY_STAMP: online flag, login timestamp, and the new session
	// id on the directory row.
	if err := s.profiles.UpdateActivity(ctx, profile.UID, true, now, now, sess.Token); err != nil {
		return LoginResult{}, fmt.Errorf("failed to stamp login activity: %w", err)
	}

	if s.liveness != nil {
		if seedErr := s.liveness.SeedLiveness(ctx, sess.Token, profile.Roles, sess.ExpiresAt); seedErr != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "failed to seed claims cache", "error", seedErr)
		}
	}

	metrics.ActiveSessions++
	metrics.TotalHistoricalSessions++
	created := sess.CreatedAt
	metrics.LastSessionCreated = &created

	profile.SessionID = sess.Token
	profile.IsOnline = true
	profile.LastLogin = &now
	profile.LastActivity = &now
	profile.Metrics = &metrics

	if s.logger != nil {
		s.logger.InfoContext(ctx, "login succeeded",
			"uid", profile.UID,
			"remember_me", req.RememberMe,
			"active_sessions", metrics.ActiveSessions,
		)
	}

	return LoginResult{Profile: profile, Token: sess.Token, ExpiresAt: sess.ExpiresAt}, nil
}

// Logout ends the session behind token: the user goes offline with a
// final activity stamp, the identity backend revokes its tokens, and the
// session is deactivated. Users that do not allow multiple sessions get
// every session deactivated, not just this one. Steps run best-effort so
// one failing store cannot leave the others untouched.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	sess, err := s.sessions.Get(ctx, token)
	if err != nil {
		if apperrors.IsInvalidSession(err) || apperrors.IsUserNotFound(err) {
			// Nothing to end; clearing the cookie is the handler's job.
			return nil
		}
		return err
	}

	var errs []error
	now := s.now().UTC()

	if err := s.profiles.UpdateActivity(ctx, sess.UserID, false, time.Time{}, now, ""); err != nil {
		errs = append(errs, fmt.Errorf("failed to mark user offline: %w", err))
	}
	if err := s.backend.SignOut(ctx, sess.UserID); err != nil {
		errs = append(errs, fmt.Errorf("failed to sign out of identity backend: %w", err))
	}

	allowMultiple := false
	if profile, perr := s.profiles.Get(ctx, sess.UserID); perr == nil {
		allowMultiple = profile.AllowMultipleSessions
	} else {
		errs = append(errs, fmt.Errorf("failed to read profile: %w", perr))
	}

	revoked := []string{token}
	if allowMultiple {
		if err := s.sessions.Deactivate(ctx, token); err != nil {
			errs = append(errs, fmt.Errorf("failed to deactivate session: %w", err))
		}
	} else {
		tokens, err := s.sessions.DeactivateAllForUser(ctx, sess.UserID)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to deactivate sessions: %w", err))
		}
		for _, t := range tokens {
			if t != token {
				revoked = append(revoked, t)
			}
		}
	}

	// Every deactivated session loses its cached claims, not just the one
	// behind the presented token.
	if s.liveness != nil {
		for _, t := range revoked {
			if err := s.liveness.InvalidateLiveness(ctx, t); err != nil {
				errs = append(errs, fmt.Errorf("failed to invalidate claims cache: %w", err))
			}
		}
	}

	if len(errs) > 0 {
		return apperrors.Wrap(errors.Join(errs...), apperrors.ErrCodeInternal, "logout incomplete")
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "logout completed", "uid", sess.UserID, "all_sessions", !allowMultiple)
	}
	return nil
}

// generateSessionToken returns a new opaque session token.
func generateSessionToken() string {
	return uuid.NewString()
}
