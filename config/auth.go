package config

import (
	"fmt"
	"strings"
)

// SourceOfTruth selects which role store wins when the role synchronizer
// finds the claim pair out of agreement.
type SourceOfTruth string

const (
	// SourceOfTruthPrimary makes the user directory authoritative:
	// identity-backend custom claims are overwritten from directory rows.
	SourceOfTruthPrimary SourceOfTruth = "primary"
	// SourceOfTruthSecondary makes identity-backend claims authoritative:
	// directory rows are overwritten from custom claims.
	SourceOfTruthSecondary SourceOfTruth = "secondary"
)

// UnmarshalText implements encoding.TextUnmarshaler for SourceOfTruth.
func (s *SourceOfTruth) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "primary", "secondary":
		*s = SourceOfTruth(v)
		return nil
	default:
		return fmt.Errorf("invalid SourceOfTruth: %q (valid options: primary, secondary)", v)
	}
}

// IdentityBackendConfig contains connection settings for the external
// identity provider's REST API.
type IdentityBackendConfig struct {
	// BaseURL is the identity backend API root, e.g. "https://identity.example.com".
	BaseURL string `env:"BASE_URL"`

	// IssuerURL enables OIDC discovery and ID-token verification when set.
	IssuerURL string `env:"ISSUER_URL"`

	// ClientID is the OIDC audience expected on ID tokens.
	ClientID string `env:"CLIENT_ID"`

	// Service-account credentials for the admin API (client-credentials grant).
	TokenURL            string   `env:"TOKEN_URL"`
	ServiceClientID     string   `env:"SERVICE_CLIENT_ID"`
	ServiceClientSecret string   `env:"SERVICE_CLIENT_SECRET"`
	Scopes              []string `env:"SCOPES" envDefault:"identity.admin" envSeparator:";"`

	// JMESPath expressions locating the role claims inside the backend's
	// custom-attributes payload.
	PrimaryRolePath  string `env:"PRIMARY_ROLE_PATH"  envDefault:"primaryRole"`
	SectionRolesPath string `env:"SECTION_ROLES_PATH" envDefault:"sectionRoles"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Backend is the external identity provider connection.
	Backend IdentityBackendConfig `envPrefix:"IDP_"`

	// SourceOfTruth picks the winner when directory roles and backend
	// claims disagree.
	SourceOfTruth SourceOfTruth `env:"AUTH_SOURCE_OF_TRUTH" envDefault:"primary"`

	// EnforceSingleSession rejects logins while another session is active
	// for users that do not allow multiple sessions. Off by default.
	EnforceSingleSession bool `env:"AUTH_ENFORCE_SINGLE_SESSION" envDefault:"false"`
}
