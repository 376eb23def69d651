package auth

import (
	"sort"
	"time"
)

// RoleClaims is the role pair stored both in the user directory (business
// source of truth) and as identity-backend custom claims (fast path for
// token-based authorization). The two copies are reconciled by the role
// synchronizer; equality is order-independent over section roles.
type RoleClaims struct {
	PrimaryRole  PrimaryRole   `json:"primaryRole"`
	SectionRoles []SectionRole `json:"sectionRoles"`
}

// Equal reports whether two claim pairs carry the same primary role and
// the same section-role set, ignoring order and duplicates.
func (c RoleClaims) Equal(other RoleClaims) bool {
	if c.PrimaryRole != other.PrimaryRole {
		return false
	}
	return sectionSetEqual(c.SectionRoles, other.SectionRoles)
}

// EffectiveSections returns the section roles the claims actually grant:
// the held sections capped by what the primary role may access. Excess
// section roles are tolerated but never grant extra permission. A
// superadmin's reach is its full accessible set regardless of tags.
func (c RoleClaims) EffectiveSections() []SectionRole {
	accessible := AccessibleSections(c.PrimaryRole)
	if c.PrimaryRole == RoleSuperAdmin {
		return accessible
	}
	allowed := make(map[SectionRole]bool, len(accessible))
	for _, s := range accessible {
		allowed[s] = true
	}
	out := make([]SectionRole, 0, len(c.SectionRoles))
	seen := make(map[SectionRole]bool, len(c.SectionRoles))
	for _, s := range c.SectionRoles {
		if allowed[s] && !seen[s] {
			out = append(out, s)
			seen[s] = true
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sectionSetEqual(a, b []SectionRole) bool {
	setA := make(map[SectionRole]bool, len(a))
	for _, s := range a {
		setA[s] = true
	}
	setB := make(map[SectionRole]bool, len(b))
	for _, s := range b {
		setB[s] = true
	}
	if len(setA) != len(setB) {
		return false
	}
	for s := range setA {
		if !setB[s] {
			return false
		}
	}
	return true
}

// UserProfile is the merged view of a portal user: identity-backend
// fields (email, verification, custom claims) joined with the directory
// record (flags, activity, audit trail).
type UserProfile struct {
	UID           string `json:"uid"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
	DisplayName   string `json:"displayName"`

	Roles RoleClaims `json:"roles"`

	// Lifecycle flags; all default false.
	Blocked               bool `json:"blocked"`
	Disabled              bool `json:"disabled"`
	Deleted               bool `json:"deleted"`
	AllowMultipleSessions bool `json:"allowMultipleSessions"`

	IsOnline     bool       `json:"isOnline"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
	LastActivity *time.Time `json:"lastActivity,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
	UpdatedBy string    `json:"updatedBy,omitempty"`

	// Session accounting, enriched at login and on demand.
	SessionID string          `json:"sessionId,omitempty"`
	Metrics   *SessionMetrics `json:"sessionMetrics,omitempty"`
}

// DeviceInfo captures the client device a session was created from.
type DeviceInfo struct {
	UserAgent string `json:"userAgent"`
	IP        string `json:"ip"`
}

// Session expiry windows. Remember-me sessions get the long window.
const (
	SessionTTL           = 24 * time.Hour
	SessionTTLRememberMe = 30 * 24 * time.Hour
)

// SessionData is the server-side record for one device session. Sessions
// are never physically deleted; logout, invalidation, and expiry flip
// IsActive so the history stays available for audit and metrics.
type SessionData struct {
	Token        string     `json:"token"`
	UserID       string     `json:"userId"`
	Device       DeviceInfo `json:"deviceInfo"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastActivity time.Time  `json:"lastActivity"`
	IsActive     bool       `json:"isActive"`
	ExpiresAt    time.Time  `json:"expiresAt"`
}

// Expired reports whether the session's expiry has passed at now.
func (s SessionData) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Live reports session liveness: active flag set and not expired.
// An expired session is dead regardless of IsActive.
func (s SessionData) Live(now time.Time) bool {
	return s.IsActive && !s.Expired(now)
}

// SessionMetrics is derived session accounting for one user. It is
// recomputed on demand and never cached beyond a single request.
type SessionMetrics struct {
	ActiveSessions          int        `json:"activeSessions"`
	TotalHistoricalSessions int        `json:"totalHistoricalSessions"`
	LastSessionCreated      *time.Time `json:"lastSessionCreated,omitempty"`
}
