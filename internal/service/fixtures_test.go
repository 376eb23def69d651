package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brokerhaus/portal-api/config"
	domainauth "github.com/brokerhaus/portal-api/internal/domain/auth"
	mocks "github.com/brokerhaus/portal-api/internal/mocks/auth"
	"github.com/brokerhaus/portal-api/internal/ports"
)

// testEnv wires the full auth service stack over in-memory doubles.
type testEnv struct {
	backend  *mocks.FakeIdentityBackend
	profiles *mocks.MemoryProfileStore
	sessions *mocks.MemorySessionStore
	cache    *mocks.MemoryClaimsCache

	roleSync *RoleSyncService
	identity *IdentityService
	validate *SessionService
	auth     *AuthService
}

type envOptions struct {
	sourceOfTruth        config.SourceOfTruth
	enforceSingleSession bool
	now                  func() time.Time
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	env := &testEnv{
		backend:  mocks.NewFakeIdentityBackend(),
		profiles: mocks.NewMemoryProfileStore(),
		sessions: mocks.NewMemorySessionStore(),
		cache:    mocks.NewMemoryClaimsCache(),
	}

	now := opts.now
	if now == nil {
		now = time.Now
	}
	env.cache.Now = now

	var err error
	env.roleSync, err = NewRoleSyncService(RoleSyncServiceOptions{
		Backend:       env.backend,
		Profiles:      env.profiles,
		SourceOfTruth: opts.sourceOfTruth,
	})
	require.NoError(t, err)

	env.identity, err = NewIdentityService(IdentityServiceOptions{
		Backend:  env.backend,
		Profiles: env.profiles,
		Sessions: env.sessions,
		RoleSync: env.roleSync,
		Cache:    env.cache,
		Now:      now,
	})
	require.NoError(t, err)

	env.validate, err = NewSessionService(SessionServiceOptions{
		Sessions: env.sessions,
		Profiles: env.profiles,
		Identity: env.identity,
		Cache:    env.cache,
		Now:      now,
	})
	require.NoError(t, err)

	env.auth, err = NewAuthService(AuthServiceOptions{
		Identity:             env.identity,
		Sessions:             env.sessions,
		Profiles:             env.profiles,
		Backend:              env.backend,
		Liveness:             env.validate,
		EnforceSingleSession: opts.enforceSingleSession,
		Now:                  now,
	})
	require.NoError(t, err)

	return env
}

func quotesBrokerClaims() domainauth.RoleClaims {
	return domainauth.RoleClaims{
		PrimaryRole:  domainauth.RoleBroker,
		SectionRoles: []domainauth.SectionRole{domainauth.SectionQuotes, domainauth.SectionPolicies},
	}
}

// seedUser registers a verified, unflagged account in both stores with
// matching claims and the given password.
func (env *testEnv) seedUser(uid, email, password string, claims domainauth.RoleClaims) {
	env.backend.AddAccount(ports.BackendAccount{
		UID:           uid,
		Email:         email,
		EmailVerified: true,
		DisplayName:   "Test User",
		Claims:        claims,
	}, password)
	env.profiles.Seed(domainauth.UserProfile{
		UID:           uid,
		Email:         email,
		EmailVerified: true,
		Roles:         claims,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	})
}

// seedSession creates an active session for uid and returns its token.
func (env *testEnv) seedSession(t *testing.T, uid string, ttl time.Duration) string {
	t.Helper()
	now := time.Now().UTC()
	sess := domainauth.SessionData{
		Token:        generateSessionToken(),
		UserID:       uid,
		Device:       domainauth.DeviceInfo{UserAgent: "go-test", IP: "127.0.0.1"},
		CreatedAt:    now,
		LastActivity: now,
		IsActive:     true,
		ExpiresAt:    now.Add(ttl),
	}
	require.NoError(t, env.sessions.Create(context.Background(), sess))
	return sess.Token
}
