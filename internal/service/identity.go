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

// UserStateError checks the lifecycle flags on a profile and returns the
// matching typed error, or nil when the account is usable. Precedence is
// fixed: unverified email wins over disabled, disabled over blocked,
// blocked over deleted.
func UserStateError(p domainauth.UserProfile) error {
	switch {
	case !p.EmailVerified:
		return apperrors.EmailNotVerified("Email address has not been verified")
	case p.Disabled:
		return apperrors.UserDisabled("Account is disabled")
	case p.Blocked:
		return apperrors.UserBlocked("Account is blocked")
	case p.Deleted:
		return apperrors.UserDeleted("Account has been deleted")
	default:
		return nil
	}
}

// IdentityServiceOptions groups dependencies for IdentityService.
type IdentityServiceOptions struct {
	Backend  ports.IdentityBackend // Required: identity backend
	Profiles ports.ProfileStore    // Required: user directory
	Sessions ports.SessionStore    // Required: session store
	RoleSync *RoleSyncService      // Required: role synchronizer
	Cache    ports.ClaimsCache     // Optional: invalidated on role changes
	Logger   *slog.Logger          // Optional: structured logger
	Now      func() time.Time      // Optional: clock, defaults to time.Now
}

// IdentityService is the single seam between the orchestration layer and
// the external identity backend plus the user directory. Every profile
// read it serves is the merged view: credential-side fields from the
// backend, lifecycle and audit fields from the directory, role claims
// already reconciled.
type IdentityService struct {
	backend  ports.IdentityBackend
	profiles ports.ProfileStore
	sessions ports.SessionStore
	roleSync *RoleSyncService
	cache    ports.ClaimsCache
	logger   *slog.Logger
	now      func() time.Time
}

// NewIdentityService constructs a new IdentityService.
func NewIdentityService(opts IdentityServiceOptions) (*IdentityService, error) {
	if opts.Backend == nil {
		return nil, errors.New("IdentityBackend is required")
	}
	if opts.Profiles == nil {
		return nil, errors.New("ProfileStore is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("SessionStore is required")
	}
	if opts.RoleSync == nil {
		return nil, errors.New("RoleSyncService is required")
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "identity_service")
	}

	return &IdentityService{
		backend:  opts.Backend,
		profiles: opts.Profiles,
		sessions: opts.Sessions,
		roleSync: opts.RoleSync,
		cache:    opts.Cache,
		logger:   logger,
		now:      now,
	}, nil
}

// Login verifies credentials against the identity backend, reconciles the
// role claim pair, and returns the merged profile. A backend account with
// no directory row is treated as unprovisioned and fails with UserNotFound.
func (s *IdentityService) Login(ctx context.Context, email, password string) (domainauth.UserProfile, error) {
	result, err := s.backend.SignIn(ctx, email, password)
	if err != nil {
		return domainauth.UserProfile{}, err
	}

	profile, err := s.profiles.Get(ctx, result.Account.UID)
	if err != nil {
		if apperrors.IsUserNotFound(err) {
			if s.logger != nil {
				s.logger.WarnContext(ctx, "backend account has no directory row",
					"uid", result.Account.UID,
				)
			}
		}
		return domainauth.UserProfile{}, err
	}

	// The backend owns the verification flag and display name; a stale
	// directory copy heals on login the same way the role pair does.
	if profile.EmailVerified != result.Account.EmailVerified ||
		(result.Account.DisplayName != "" && result.Account.DisplayName != profile.DisplayName) {
		if vErr := s.profiles.UpdateVerification(ctx, result.Account.UID, result.Account.EmailVerified, result.Account.DisplayName); vErr != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "failed to sync backend account fields",
				"uid", result.Account.UID, "error", vErr)
		}
	}

	claims, err := s.roleSync.SyncClaims(ctx, result.Account.UID, profile.Roles, result.Account.Claims)
	if err != nil {
		return domainauth.UserProfile{}, err
	}

	return mergeProfile(result.Account, profile, claims), nil
}

// GetUser returns the merged profile for uid, enriched with session
// metrics. The directory row is required; an identity record alone is an
// inconsistent account and fails with UserNotFound.
func (s *IdentityService) GetUser(ctx context.Context, uid string) (domainauth.UserProfile, error) {
	account, err := s.backend.GetAccount(ctx, uid)
	if err != nil {
		return domainauth.UserProfile{}, err
	}
	profile, err := s.profiles.Get(ctx, uid)
	if err != nil {
		return domainauth.UserProfile{}, err
	}

	merged := mergeProfile(account, profile, profile.Roles)
	if metrics, merr := s.sessions.Metrics(ctx, uid); merr == nil {
		merged.Metrics = &metrics
	} else if s.logger != nil {
		s.logger.WarnContext(ctx, "failed to compute session metrics", "uid", uid, "error", merr)
	}
	return merged, nil
}

// ValidateUserState fetches the merged profile and checks its lifecycle
// flags, failing with the highest-precedence state error.
func (s *IdentityService) ValidateUserState(ctx context.Context, uid string) error {
	profile, err := s.GetUser(ctx, uid)
	if err != nil {
		return err
	}
	return UserStateError(profile)
}

// SetCustomClaims writes the role claims to both stores so the pair stays
// aligned without waiting for the next login's sync, then drops any
// cached claims for the user's active sessions so the edge cannot keep
// authorizing against the old roles.
func (s *IdentityService) SetCustomClaims(ctx context.Context, uid string, claims domainauth.RoleClaims, updatedBy string) error {
	if err := s.backend.SetCustomClaims(ctx, uid, claims); err != nil {
		return err
	}
	if err := s.profiles.UpdateRoles(ctx, uid, claims, updatedBy); err != nil {
		return err
	}
	s.invalidateCachedClaims(ctx, uid)
	return nil
}

// invalidateCachedClaims drops the cached claims of every active session
// of the user. Best effort: a failed drop is bounded by the cache TTL.
func (s *IdentityService) invalidateCachedClaims(ctx context.Context, uid string) {
	if s.cache == nil {
		return
	}
	tokens, err := s.sessions.ActiveTokensForUser(ctx, uid)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to list sessions for cache invalidation", "uid", uid, "error", err)
		}
		return
	}
	for _, token := range tokens {
		if err := s.cache.Invalidate(ctx, token); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "failed to invalidate cached claims", "uid", uid, "error", err)
		}
	}
}

// UpdateUserActivity stamps online state and last activity on the
// directory row and fans the activity stamp out to every active session
// of the user in one batched write.
func (s *IdentityService) UpdateUserActivity(ctx context.Context, uid string, online bool, sessionID string) error {
	now := s.now().UTC()
	if err := s.profiles.UpdateActivity(ctx, uid, online, time.Time{}, now, sessionID); err != nil {
		return err
	}
	return s.sessions.TouchAllActive(ctx, uid, now)
}

// RecoverAccess triggers the backend's password-reset email. The response
// is uniform whether or not the account exists, so the endpoint cannot be
// used to enumerate accounts. Infrastructure failures still propagate.
func (s *IdentityService) RecoverAccess(ctx context.Context, email string) error {
	err := s.backend.SendPasswordReset(ctx, email)
	return s.normalizeRecovery(ctx, email, err)
}

// ResendVerification triggers the backend's verification email with the
// same uniform-response contract as RecoverAccess.
func (s *IdentityService) ResendVerification(ctx context.Context, email string) error {
	err := s.backend.SendEmailVerification(ctx, email)
	return s.normalizeRecovery(ctx, email, err)
}

func (s *IdentityService) normalizeRecovery(ctx context.Context, email string, err error) error {
	if err == nil {
		return nil
	}
	if apperrors.IsUserNotFound(err) || apperrors.IsInvalidCredentials(err) {
		if s.logger != nil {
			s.logger.InfoContext(ctx, "recovery requested for unknown account", "email", email)
		}
		return nil
	}
	return err
}

// mergeProfile joins the backend account with the directory row. The
// backend owns credential-side fields, the directory owns lifecycle and
// audit fields, and the reconciled claims override both copies.
func mergeProfile(account ports.BackendAccount, profile domainauth.UserProfile, claims domainauth.RoleClaims) domainauth.UserProfile {
	merged := profile
	merged.Email = account.Email
	merged.EmailVerified = account.EmailVerified
	if account.DisplayName != "" {
		merged.DisplayName = account.DisplayName
	}
	merged.Disabled = profile.Disabled || account.Disabled
	merged.Roles = claims
	return merged
}
