package httpx

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	domainauth "github.com/brokerhaus/portal-api/internal/domain/auth"
	"github.com/brokerhaus/portal-api/internal/domain/watchdog"
	mocks "github.com/brokerhaus/portal-api/internal/mocks/auth"
	"github.com/brokerhaus/portal-api/internal/ports"
	"github.com/brokerhaus/portal-api/internal/service"
)

// testEnv wires the router over in-memory doubles.
type testEnv struct {
	backend  *mocks.FakeIdentityBackend
	profiles *mocks.MemoryProfileStore
	sessions *mocks.MemorySessionStore
	cache    *mocks.MemoryClaimsCache

	identity *service.IdentityService
	validate *service.SessionService
	auth     *service.AuthService

	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		backend:  mocks.NewFakeIdentityBackend(),
		profiles: mocks.NewMemoryProfileStore(),
		sessions: mocks.NewMemorySessionStore(),
		cache:    mocks.NewMemoryClaimsCache(),
	}

	roleSync, err := service.NewRoleSyncService(service.RoleSyncServiceOptions{
		Backend:  env.backend,
		Profiles: env.profiles,
	})
	require.NoError(t, err)

	env.identity, err = service.NewIdentityService(service.IdentityServiceOptions{
		Backend:  env.backend,
		Profiles: env.profiles,
		Sessions: env.sessions,
		RoleSync: roleSync,
		Cache:    env.cache,
	})
	require.NoError(t, err)

	env.validate, err = service.NewSessionService(service.SessionServiceOptions{
		Sessions: env.sessions,
		Profiles: env.profiles,
		Identity: env.identity,
		Cache:    env.cache,
	})
	require.NoError(t, err)

	env.auth, err = service.NewAuthService(service.AuthServiceOptions{
		Identity: env.identity,
		Sessions: env.sessions,
		Profiles: env.profiles,
		Backend:  env.backend,
		Liveness: env.validate,
	})
	require.NoError(t, err)

	env.handler = NewRouter(RouterServices{
		Auth:     env.auth,
		Identity: env.identity,
		Validate: env.validate,
		Sessions: env.sessions,
		Watchdog: watchdog.Config{SessionTimeout: 30 * time.Minute, WarningWindow: time.Minute},
		Cookies:  CookieSettings{Secure: true},
	})

	return env
}

func brokerClaims() domainauth.RoleClaims {
	return domainauth.RoleClaims{
		PrimaryRole:  domainauth.RoleBroker,
		SectionRoles: []domainauth.SectionRole{domainauth.SectionQuotes},
	}
}

// seedUser registers a verified, unflagged account in both stores.
func (env *testEnv) seedUser(uid, email, password string, claims domainauth.RoleClaims) {
	env.backend.AddAccount(ports.BackendAccount{
		UID:           uid,
		Email:         email,
		EmailVerified: true,
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

// seedSession creates an active session and returns its token. The
// lastActivity stamp can be shifted into the past with age.
func (env *testEnv) seedSession(t *testing.T, uid string, age time.Duration) string {
	t.Helper()
	now := time.Now().UTC()
	sess := domainauth.SessionData{
		Token:        uuid.NewString(),
		UserID:       uid,
		Device:       domainauth.DeviceInfo{UserAgent: "go-test", IP: "127.0.0.1"},
		CreatedAt:    now.Add(-age),
		LastActivity: now.Add(-age),
		IsActive:     true,
		ExpiresAt:    now.Add(domainauth.SessionTTL),
	}
	require.NoError(t, env.sessions.Create(context.Background(), sess))
	return sess.Token
}

func sessionCookie(token string) *http.Cookie {
	return &http.Cookie{Name: SessionCookieName, Value: token}
}

// clearedSessionCookie returns the expired session_id cookie from the
// response, if one was set.
func clearedSessionCookie(t *testing.T, cookies []*http.Cookie) *http.Cookie {
	t.Helper()
	for _, c := range cookies {
		if c.Name == SessionCookieName && c.MaxAge < 0 {
			return c
		}
	}
	return nil
}
