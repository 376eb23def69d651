package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/brokerhaus/portal-api/internal/errors"

	domainauth "github.com/brokerhaus/portal-api/internal/domain/auth"
	"github.com/brokerhaus/portal-api/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.IdentityBackend = (*FakeIdentityBackend)(nil)
	_ ports.ProfileStore    = (*MemoryProfileStore)(nil)
	_ ports.SessionStore    = (*MemorySessionStore)(nil)
	_ ports.ClaimsCache     = (*MemoryClaimsCache)(nil)
)

// FakeIdentityBackend simulates the external identity provider. Accounts
// are registered with a password; any method can be overridden per test
// via its Func field.
type FakeIdentityBackend struct {
	SignInFunc            func(ctx context.Context, email, password string) (ports.SignInResult, error)
	GetAccountFunc        func(ctx context.Context, uid string) (ports.BackendAccount, error)
	SetCustomClaimsFunc   func(ctx context.Context, uid string, claims domainauth.RoleClaims) error
	SetDisabledFunc       func(ctx context.Context, uid string, disabled bool) error
	SendPasswordResetFunc func(ctx context.Context, email string) error
	SignOutFunc           func(ctx context.Context, uid string) error

	mu        sync.Mutex
	accounts  map[string]ports.BackendAccount // keyed by uid
	passwords map[string]string               // email → password

	// Call accounting for assertions.
	ClaimsSet      map[string]domainauth.RoleClaims
	SignOutCalls   []string
	ResetEmails    []string
	VerifyEmails   []string
	DisabledStates map[string]bool
}

// NewFakeIdentityBackend creates an empty fake backend.
func NewFakeIdentityBackend() *FakeIdentityBackend {
	return &FakeIdentityBackend{
		accounts:       make(map[string]ports.BackendAccount),
		passwords:      make(map[string]string),
		ClaimsSet:      make(map[string]domainauth.RoleClaims),
		DisabledStates: make(map[string]bool),
	}
}

// AddAccount registers an account with a password for sign-in.
func (f *FakeIdentityBackend) AddAccount(acct ports.BackendAccount, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[acct.UID] = acct
	f.passwords[acct.Email] = password
}

func (f *FakeIdentityBackend) SignIn(ctx context.Context, email, password string) (ports.SignInResult, error) {
	if f.SignInFunc != nil {
		return f.SignInFunc(ctx, email, password)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	want, ok := f.passwords[email]
	if !ok || want != password {
		return ports.SignInResult{}, apperrors.InvalidCredentials("Invalid email or password")
	}
	for _, acct := range f.accounts {
		if acct.Email == email {
			if acct.Disabled {
				return ports.SignInResult{}, apperrors.UserDisabled("Account is disabled")
			}
			return ports.SignInResult{Account: acct, IDToken: "fake-id-token-" + acct.UID}, nil
		}
	}
	return ports.SignInResult{}, apperrors.InvalidCredentials("Invalid email or password")
}

func (f *FakeIdentityBackend) GetAccount(ctx context.Context, uid string) (ports.BackendAccount, error) {
	if f.GetAccountFunc != nil {
		return f.GetAccountFunc(ctx, uid)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[uid]
	if !ok {
		return ports.BackendAccount{}, apperrors.UserNotFoundf("no account for uid %s", uid)
	}
	return acct, nil
}

func (f *FakeIdentityBackend) SetCustomClaims(ctx context.Context, uid string, claims domainauth.RoleClaims) error {
	if f.SetCustomClaimsFunc != nil {
		return f.SetCustomClaimsFunc(ctx, uid, claims)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[uid]
	if !ok {
		return apperrors.UserNotFoundf("no account for uid %s", uid)
	}
	acct.Claims = claims
	f.accounts[uid] = acct
	f.ClaimsSet[uid] = claims
	return nil
}

func (f *FakeIdentityBackend) SetDisabled(ctx context.Context, uid string, disabled bool) error {
	if f.SetDisabledFunc != nil {
		return f.SetDisabledFunc(ctx, uid, disabled)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[uid]
	if !ok {
		return apperrors.UserNotFoundf("no account for uid %s", uid)
	}
	acct.Disabled = disabled
	f.accounts[uid] = acct
	f.DisabledStates[uid] = disabled
	return nil
}

func (f *FakeIdentityBackend) SendPasswordReset(ctx context.Context, email string) error {
	if f.SendPasswordResetFunc != nil {
		return f.SendPasswordResetFunc(ctx, email)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.passwords[email]; !ok {
		return apperrors.UserNotFound("no account for email")
	}
	f.ResetEmails = append(f.ResetEmails, email)
	return nil
}

func (f *FakeIdentityBackend) SendEmailVerification(ctx context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.passwords[email]; !ok {
		return apperrors.UserNotFound("no account for email")
	}
	f.VerifyEmails = append(f.VerifyEmails, email)
	return nil
}

func (f *FakeIdentityBackend) SignOut(ctx context.Context, uid string) error {
	if f.SignOutFunc != nil {
		return f.SignOutFunc(ctx, uid)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SignOutCalls = append(f.SignOutCalls, uid)
	return nil
}

// MemoryProfileStore is an in-memory user directory for unit tests.
type MemoryProfileStore struct {
	mu       sync.Mutex
	profiles map[string]domainauth.UserProfile

	// RoleUpdates records UpdateRoles calls for assertions.
	RoleUpdates []string
}

// NewMemoryProfileStore creates an empty in-memory directory.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[string]domainauth.UserProfile)}
}

// Seed inserts a profile directly, bypassing Create bookkeeping.
func (m *MemoryProfileStore) Seed(p domainauth.UserProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.UID] = p
}

func (m *MemoryProfileStore) Get(_ context.Context, uid string) (domainauth.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[uid]
	if !ok {
		return domainauth.UserProfile{}, apperrors.UserNotFoundf("no profile for uid %s", uid)
	}
	return p, nil
}

func (m *MemoryProfileStore) GetByEmail(_ context.Context, email string) (domainauth.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.Email == email {
			return p, nil
		}
	}
	return domainauth.UserProfile{}, apperrors.UserNotFound("no profile for email")
}

func (m *MemoryProfileStore) Create(_ context.Context, profile domainauth.UserProfile) (domainauth.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[profile.UID]; ok {
		return domainauth.UserProfile{}, apperrors.UserExists("profile already exists")
	}
	now := time.Now().UTC()
	profile.CreatedAt = now
	profile.UpdatedAt = now
	m.profiles[profile.UID] = profile
	return profile, nil
}

func (m *MemoryProfileStore) UpdateRoles(_ context.Context, uid string, claims domainauth.RoleClaims, updatedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[uid]
	if !ok {
		return apperrors.UserNotFoundf("no profile for uid %s", uid)
	}
	p.Roles = claims
	p.UpdatedBy = updatedBy
	p.UpdatedAt = time.Now().UTC()
	m.profiles[uid] = p
	m.RoleUpdates = append(m.RoleUpdates, uid)
	return nil
}

func (m *MemoryProfileStore) UpdateVerification(_ context.Context, uid string, emailVerified bool, displayName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[uid]
	if !ok {
		return apperrors.UserNotFoundf("no profile for uid %s", uid)
	}
	p.EmailVerified = emailVerified
	if displayName != "" {
		p.DisplayName = displayName
	}
	p.UpdatedAt = time.Now().UTC()
	m.profiles[uid] = p
	return nil
}

func (m *MemoryProfileStore) UpdateActivity(_ context.Context, uid string, online bool, lastLogin, lastActivity time.Time, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[uid]
	if !ok {
		return apperrors.UserNotFoundf("no profile for uid %s", uid)
	}
	p.IsOnline = online
	if !lastLogin.IsZero() {
		ll := lastLogin
		p.LastLogin = &ll
	}
	if !lastActivity.IsZero() {
		la := lastActivity
		p.LastActivity = &la
	}
	p.SessionID = sessionID
	p.UpdatedAt = time.Now().UTC()
	m.profiles[uid] = p
	return nil
}

// MemorySessionStore is an in-memory session store honoring the
// soft-deactivation contract.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.SessionData
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]domainauth.SessionData)}
}

// All returns a snapshot of every stored session, active or not.
func (m *MemorySessionStore) All() []domainauth.SessionData {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domainauth.SessionData, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

func (m *MemorySessionStore) Create(_ context.Context, sess domainauth.SessionData) error {
	if sess.Token == "" {
		return apperrors.Validation("session token cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sess.Token]; ok {
		return apperrors.UserExists("session already exists")
	}
	m.sessions[sess.Token] = sess
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, token string) (domainauth.SessionData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return domainauth.SessionData{}, apperrors.InvalidSession("session not found")
	}
	return s, nil
}

func (m *MemorySessionStore) Touch(_ context.Context, token string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return apperrors.InvalidSession("session not found")
	}
	s.LastActivity = at
	m.sessions[token] = s
	return nil
}

func (m *MemorySessionStore) TouchAllActive(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, s := range m.sessions {
		if s.UserID == userID && s.IsActive {
			s.LastActivity = at
			m.sessions[token] = s
		}
	}
	return nil
}

func (m *MemorySessionStore) Deactivate(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return apperrors.InvalidSession("session not found")
	}
	s.IsActive = false
	m.sessions[token] = s
	return nil
}

func (m *MemorySessionStore) DeactivateAllForUser(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var tokens []string
	for token, s := range m.sessions {
		if s.UserID == userID && s.IsActive {
			s.IsActive = false
			m.sessions[token] = s
			tokens = append(tokens, token)
		}
	}
	return tokens, nil
}

func (m *MemorySessionStore) ActiveTokensForUser(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var tokens []string
	for token, s := range m.sessions {
		if s.UserID == userID && s.IsActive {
			tokens = append(tokens, token)
		}
	}
	return tokens, nil
}

func (m *MemorySessionStore) DeactivateExpired(_ context.Context, now time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []string
	seen := make(map[string]bool)
	n := 0
	for token, s := range m.sessions {
		if limit > 0 && n >= limit {
			break
		}
		if s.IsActive && s.Expired(now) {
			s.IsActive = false
			m.sessions[token] = s
			n++
			if !seen[s.UserID] {
				seen[s.UserID] = true
				users = append(users, s.UserID)
			}
		}
	}
	return users, nil
}

func (m *MemorySessionStore) Metrics(_ context.Context, userID string) (domainauth.SessionMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var metrics domainauth.SessionMetrics
	for _, s := range m.sessions {
		if s.UserID != userID {
			continue
		}
		metrics.TotalHistoricalSessions++
		if s.IsActive {
			metrics.ActiveSessions++
		}
		created := s.CreatedAt
		if metrics.LastSessionCreated == nil || created.After(*metrics.LastSessionCreated) {
			metrics.LastSessionCreated = &created
		}
	}
	return metrics, nil
}

// MemoryClaimsCache is an in-memory claims cache with TTL semantics.
type MemoryClaimsCache struct {
	mu      sync.Mutex
	entries map[string]claimsEntry

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

type claimsEntry struct {
	claims    domainauth.RoleClaims
	expiresAt time.Time
}

// NewMemoryClaimsCache creates an empty claims cache.
func NewMemoryClaimsCache() *MemoryClaimsCache {
	return &MemoryClaimsCache{entries: make(map[string]claimsEntry), Now: time.Now}
}

func (m *MemoryClaimsCache) Put(_ context.Context, token string, claims domainauth.RoleClaims, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[token] = claimsEntry{claims: claims, expiresAt: m.Now().Add(ttl)}
	return nil
}

func (m *MemoryClaimsCache) Get(_ context.Context, token string) (domainauth.RoleClaims, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[token]
	if !ok || m.Now().After(e.expiresAt) {
		return domainauth.RoleClaims{}, false, nil
	}
	return e.claims, true, nil
}

func (m *MemoryClaimsCache) Invalidate(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, token)
	return nil
}
