package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters and internal/data; orchestration
// in internal/service.

import (
	"context"
	"time"

	domainauth "github.com/brokerhaus/portal-api/internal/domain/auth"
)

// BackendAccount is the identity backend's view of one account: the
// credential-side fields the directory does not own.
type BackendAccount struct {
	UID           string
	Email         string
	EmailVerified bool
	DisplayName   string
	Disabled      bool
	Claims        domainauth.RoleClaims
}

// SignInResult carries what a successful password sign-in yields.
type SignInResult struct {
	Account BackendAccount
	// IDToken is the raw verified ID token, used to seed the claims cache.
	IDToken string
}

// IdentityBackend is the single seam over the external identity provider.
// Every credential-side operation the portal performs goes through it;
// nothing else talks to the provider.
type IdentityBackend interface {
	// SignIn verifies email/password credentials and returns the account.
	SignIn(ctx context.Context, email, password string) (SignInResult, error)

	// GetAccount fetches the backend account by uid.
	GetAccount(ctx context.Context, uid string) (BackendAccount, error)

	// SetCustomClaims replaces the role claims stored on the account.
	SetCustomClaims(ctx context.Context, uid string, claims domainauth.RoleClaims) error

	// SetDisabled flips the backend's disabled flag.
	SetDisabled(ctx context.Context, uid string, disabled bool) error

	// SendPasswordReset triggers the provider's password-reset email.
	SendPasswordReset(ctx context.Context, email string) error

	// SendEmailVerification triggers the provider's verification email.
	SendEmailVerification(ctx context.Context, email string) error

	// SignOut revokes the account's refresh tokens.
	SignOut(ctx context.Context, uid string) error
}

// ProfileStore persists the user directory, the business source of truth
// for roles and lifecycle flags.
type ProfileStore interface {
	Get(ctx context.Context, uid string) (domainauth.UserProfile, error)
	GetByEmail(ctx context.Context, email string) (domainauth.UserProfile, error)
	Create(ctx context.Context, profile domainauth.UserProfile) (domainauth.UserProfile, error)
	UpdateRoles(ctx context.Context, uid string, claims domainauth.RoleClaims, updatedBy string) error

	// UpdateVerification stamps the backend-owned verification flag and
	// display name onto the directory row. An empty displayName leaves
	// the column untouched.
	UpdateVerification(ctx context.Context, uid string, emailVerified bool, displayName string) error

	// UpdateActivity stamps login/activity/online fields. Zero-value
	// times are left untouched.
	UpdateActivity(ctx context.Context, uid string, online bool, lastLogin, lastActivity time.Time, sessionID string) error
}

// SessionStore persists device sessions. Sessions are soft-deactivated,
// never deleted.
type SessionStore interface {
	Create(ctx context.Context, sess domainauth.SessionData) error
	Get(ctx context.Context, token string) (domainauth.SessionData, error)

	// Touch updates last_activity for one session.
	Touch(ctx context.Context, token string, at time.Time) error

	// TouchAllActive updates last_activity for every active session of a
	// user in one statement.
	TouchAllActive(ctx context.Context, userID string, at time.Time) error

	Deactivate(ctx context.Context, token string) error

	// DeactivateAllForUser flips every active session of a user inactive
	// and returns the tokens it flipped, so callers can drop any derived
	// cache entries.
	DeactivateAllForUser(ctx context.Context, userID string) ([]string, error)

	// ActiveTokensForUser lists the tokens of a user's active sessions.
	ActiveTokensForUser(ctx context.Context, userID string) ([]string, error)

	// DeactivateExpired sweeps sessions past their expiry, returning the
	// user ids whose sessions were flipped, capped at limit.
	DeactivateExpired(ctx context.Context, now time.Time, limit int) ([]string, error)

	Metrics(ctx context.Context, userID string) (domainauth.SessionMetrics, error)
}

// ClaimsCache is the fast-path store mapping a session token to its role
// claims, consulted by the request gatekeeper so page loads skip the
// directory.
type ClaimsCache interface {
	Put(ctx context.Context, token string, claims domainauth.RoleClaims, ttl time.Duration) error

	// Get returns the cached claims and whether they were present.
	Get(ctx context.Context, token string) (domainauth.RoleClaims, bool, error)

	Invalidate(ctx context.Context, token string) error
}
