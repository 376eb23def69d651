package idp

// Package idp implements the IdentityBackend port against the external
// identity provider's REST API. Account sign-in uses the public endpoint;
// administrative calls (claims, disable, revocation) authenticate with a
// service-account token obtained through the client-credentials flow.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	domainauth "github.com/brokerhaus/portal-api/internal/domain/auth"
	apperrors "github.com/brokerhaus/portal-api/internal/errors"
	"github.com/brokerhaus/portal-api/internal/ports"
)

// Config holds configuration for the identity backend client.
type Config struct {
	// BaseURL is the backend REST API root, e.g. "https://identity.example.com".
	BaseURL string

	// IssuerURL enables ID-token verification through OIDC discovery.
	// Empty skips verification (local development backends).
	IssuerURL string
	// ClientID is the audience expected in verified ID tokens.
	ClientID string

	// TokenURL plus service credentials drive the client-credentials flow
	// for admin API calls. Empty TokenURL sends admin calls unauthenticated
	// (local development backends).
	TokenURL            string
	ServiceClientID     string
	ServiceClientSecret string
	Scopes              []string

	// Claim paths are JMESPath expressions into the account's custom
	// attributes. Defaults: "primaryRole" and "sectionRoles".
	PrimaryRolePath  string
	SectionRolesPath string

	HTTPClient *http.Client // Optional, defaults to a 30s-timeout client
}

// Client implements ports.IdentityBackend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	adminHTTP  *http.Client
	verifier   *gooidc.IDTokenVerifier

	primaryPath  string
	sectionsPath string

	now func() time.Time
}

var _ ports.IdentityBackend = (*Client)(nil)

// NewClient creates an identity backend client. OIDC discovery runs once
// here when IssuerURL is set.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("idp: base URL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	primaryPath := cfg.PrimaryRolePath
	if primaryPath == "" {
		primaryPath = "primaryRole"
	}
	sectionsPath := cfg.SectionRolesPath
	if sectionsPath == "" {
		sectionsPath = "sectionRoles"
	}
	if _, err := jmespath.Compile(primaryPath); err != nil {
		return nil, fmt.Errorf("idp: compile primary role path: %w", err)
	}
	if _, err := jmespath.Compile(sectionsPath); err != nil {
		return nil, fmt.Errorf("idp: compile section roles path: %w", err)
	}

	c := &Client{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient:   httpClient,
		adminHTTP:    httpClient,
		primaryPath:  primaryPath,
		sectionsPath: sectionsPath,
		now:          time.Now,
	}

	if cfg.IssuerURL != "" {
		octx := context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		provider, perr := gooidc.NewProvider(octx, strings.TrimSuffix(cfg.IssuerURL, "/"))
		if perr != nil {
			return nil, fmt.Errorf("idp: oidc discovery: %w", perr)
		}
		c.verifier = provider.Verifier(&gooidc.Config{ClientID: cfg.ClientID})
	}

	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ServiceClientID,
			ClientSecret: cfg.ServiceClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		octx := context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		c.adminHTTP = oauth2.NewClient(octx, cc.TokenSource(octx))
	}

	return c, nil
}

// backendError is the error envelope the backend returns.
type backendError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// translateBackendCode maps the backend's stable error strings to
// application errors. Anything unlisted surfaces as an unknown auth
// failure so raw backend details never leak upward.
func translateBackendCode(code string) *apperrors.AppError {
	// Messages sometimes carry a suffix, e.g. "TOO_MANY_ATTEMPTS_TRY_LATER : ...".
	if i := strings.IndexAny(code, " :"); i > 0 {
		code = code[:i]
	}
	switch code {
	case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS":
		return apperrors.InvalidCredentials("Invalid email or password")
	case "USER_DISABLED":
		return apperrors.UserDisabled("This account has been disabled")
	case "EMAIL_EXISTS":
		return apperrors.UserExists("An account with this email already exists")
	case "USER_NOT_FOUND":
		return apperrors.UserNotFound("No account found")
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return apperrors.New(apperrors.ErrCodeUnknown, "Too many attempts. Please try again later.")
	case "INVALID_ID_TOKEN", "TOKEN_EXPIRED":
		return apperrors.InvalidSession("Session token is no longer valid")
	default:
		return apperrors.New(apperrors.ErrCodeUnknown, "Authentication failed. Please try again.")
	}
}

// post sends a JSON request to the backend and decodes the response into
// out, translating error envelopes.
func (c *Client) post(ctx context.Context, client *http.Client, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("idp: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("idp: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "Identity service is unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "Identity service response could not be read")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var be backendError
		if jsonErr := json.Unmarshal(data, &be); jsonErr == nil && be.Error.Message != "" {
			return translateBackendCode(be.Error.Message)
		}
		return apperrors.Internalf("identity service returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "Identity service sent an invalid response")
		}
	}
	return nil
}

type signInResponse struct {
	LocalID string `json:"localId"`
	Email   string `json:"email"`
	IDToken string `json:"idToken"`
}

type accountPayload struct {
	LocalID          string `json:"localId"`
	Email            string `json:"email"`
	EmailVerified    bool   `json:"emailVerified"`
	DisplayName      string `json:"displayName"`
	Disabled         bool   `json:"disabled"`
	CustomAttributes string `json:"customAttributes"`
}

type lookupResponse struct {
	Users []accountPayload `json:"users"`
}

// SignIn verifies credentials against the backend, verifies the returned
// ID token when a verifier is configured, and fetches the full account.
func (c *Client) SignIn(ctx context.Context, email, password string) (ports.SignInResult, error) {
	var resp signInResponse
	err := c.post(ctx, c.httpClient, "/v1/accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return ports.SignInResult{}, err
	}

	if c.verifier != nil {
		if _, verr := c.verifier.Verify(ctx, resp.IDToken); verr != nil {
			return ports.SignInResult{}, apperrors.Wrap(verr, apperrors.ErrCodeUnknown, "Authentication failed. Please try again.")
		}
	}

	account, err := c.GetAccount(ctx, resp.LocalID)
	if err != nil {
		return ports.SignInResult{}, err
	}
	return ports.SignInResult{Account: account, IDToken: resp.IDToken}, nil
}

// GetAccount fetches the backend account by uid.
func (c *Client) GetAccount(ctx context.Context, uid string) (ports.BackendAccount, error) {
	var resp lookupResponse
	err := c.post(ctx, c.adminHTTP, "/v1/accounts:lookup", map[string]any{
		"localId": []string{uid},
	}, &resp)
	if err != nil {
		return ports.BackendAccount{}, err
	}
	if len(resp.Users) == 0 {
		return ports.BackendAccount{}, apperrors.UserNotFoundf("no backend account for uid %s", uid)
	}
	return c.toBackendAccount(resp.Users[0]), nil
}

func (c *Client) toBackendAccount(p accountPayload) ports.BackendAccount {
	return ports.BackendAccount{
		UID:           p.LocalID,
		Email:         p.Email,
		EmailVerified: p.EmailVerified,
		DisplayName:   p.DisplayName,
		Disabled:      p.Disabled,
		Claims:        c.extractClaims(p.CustomAttributes),
	}
}

// extractClaims pulls the role pair out of the account's custom attribute
// JSON through the configured claim paths. Malformed attributes yield
// empty claims; the role synchronizer repairs them on next login.
func (c *Client) extractClaims(customAttributes string) domainauth.RoleClaims {
	if customAttributes == "" {
		return domainauth.RoleClaims{}
	}
	var attrs any
	if err := json.Unmarshal([]byte(customAttributes), &attrs); err != nil {
		return domainauth.RoleClaims{}
	}

	var claims domainauth.RoleClaims
	if v, err := jmespath.Search(c.primaryPath, attrs); err == nil {
		if s, ok := v.(string); ok {
			claims.PrimaryRole = domainauth.PrimaryRole(s)
		}
	}
	if v, err := jmespath.Search(c.sectionsPath, attrs); err == nil {
		if list, ok := v.([]any); ok {
			for _, item := range list {
				if s, ok := item.(string); ok {
					claims.SectionRoles = append(claims.SectionRoles, domainauth.SectionRole(s))
				}
			}
		}
	}
	return claims
}

// SetCustomClaims replaces the role claims stored on the account.
func (c *Client) SetCustomClaims(ctx context.Context, uid string, claims domainauth.RoleClaims) error {
	attrs, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("idp: marshal claims: %w", err)
	}
	return c.post(ctx, c.adminHTTP, "/v1/accounts:update", map[string]any{
		"localId":          uid,
		"customAttributes": string(attrs),
	}, nil)
}

// SetDisabled flips the backend's disabled flag.
func (c *Client) SetDisabled(ctx context.Context, uid string, disabled bool) error {
	return c.post(ctx, c.adminHTTP, "/v1/accounts:update", map[string]any{
		"localId":     uid,
		"disableUser": disabled,
	}, nil)
}

// SendPasswordReset triggers the provider's password-reset email.
func (c *Client) SendPasswordReset(ctx context.Context, email string) error {
	return c.post(ctx, c.httpClient, "/v1/accounts:sendOobCode", map[string]any{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	}, nil)
}

// SendEmailVerification triggers the provider's verification email.
func (c *Client) SendEmailVerification(ctx context.Context, email string) error {
	return c.post(ctx, c.httpClient, "/v1/accounts:sendOobCode", map[string]any{
		"requestType": "VERIFY_EMAIL",
		"email":       email,
	}, nil)
}

// SignOut revokes the account's refresh tokens by moving validSince
// forward. Existing ID tokens die at their natural expiry.
func (c *Client) SignOut(ctx context.Context, uid string) error {
	return c.post(ctx, c.adminHTTP, "/v1/accounts:update", map[string]any{
		"localId":    uid,
		"validSince": strconv.FormatInt(c.now().UTC().Unix(), 10),
	}, nil)
}
