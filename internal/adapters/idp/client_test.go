package idp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/brokerhaus/portal-api/internal/domain/auth"
	apperrors "github.com/brokerhaus/portal-api/internal/errors"
)

// fakeBackend simulates the identity provider's REST API.
type fakeBackend struct {
	accounts map[string]map[string]any // uid → account fields
	password string

	lastUpdate map[string]any
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		accounts: map[string]map[string]any{
			"uid-1": {
				"localId":       "uid-1",
				"email":         "broker@example.com",
				"emailVerified": true,
				"displayName":   "Pat Broker",
				"disabled":      false,
				"customAttributes": `{"primaryRole":"broker",` +
					`"sectionRoles":["quotes","policies"]}`,
			},
		},
		password: "s3cret",
	}
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/accounts:signInWithPassword", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		for uid, acct := range f.accounts {
			if acct["email"] == req.Email {
				if disabled, _ := acct["disabled"].(bool); disabled {
					writeBackendError(w, "USER_DISABLED")
					return
				}
				if req.Password != f.password {
					writeBackendError(w, "INVALID_PASSWORD")
					return
				}
				_ = json.NewEncoder(w).Encode(map[string]any{
					"localId": uid,
					"email":   req.Email,
					"idToken": "fake-token",
				})
				return
			}
		}
		writeBackendError(w, "EMAIL_NOT_FOUND")
	})
	mux.HandleFunc("/v1/accounts:lookup", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			LocalID []string `json:"localId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		var users []map[string]any
		for _, uid := range req.LocalID {
			if acct, ok := f.accounts[uid]; ok {
				users = append(users, acct)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"users": users})
	})
	mux.HandleFunc("/v1/accounts:update", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		uid, _ := req["localId"].(string)
		acct, ok := f.accounts[uid]
		if !ok {
			writeBackendError(w, "USER_NOT_FOUND")
			return
		}
		if v, ok := req["customAttributes"]; ok {
			acct["customAttributes"] = v
		}
		if v, ok := req["disableUser"]; ok {
			acct["disabled"] = v
		}
		f.lastUpdate = req
		_ = json.NewEncoder(w).Encode(map[string]any{"localId": uid})
	})
	mux.HandleFunc("/v1/accounts:sendOobCode", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email string `json:"email"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, acct := range f.accounts {
			if acct["email"] == req.Email {
				_ = json.NewEncoder(w).Encode(map[string]any{"email": req.Email})
				return
			}
		}
		writeBackendError(w, "EMAIL_NOT_FOUND")
	})
	return mux
}

func writeBackendError(w http.ResponseWriter, code string) {
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": 400, "message": code},
	})
}

func newTestClient(t *testing.T) (*Client, *fakeBackend) {
	t.Helper()
	backend := newFakeBackend()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(), Config{BaseURL: srv.URL})
	require.NoError(t, err)
	return client, backend
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	assert.Error(t, err)

	_, err = NewClient(context.Background(), Config{
		BaseURL:         "http://localhost",
		PrimaryRolePath: "roles[",
	})
	assert.Error(t, err, "invalid JMESPath should be rejected")
}

func TestClient_SignIn(t *testing.T) {
	client, _ := newTestClient(t)

	res, err := client.SignIn(context.Background(), "broker@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", res.Account.UID)
	assert.Equal(t, "fake-token", res.IDToken)
	assert.True(t, res.Account.EmailVerified)
	assert.Equal(t, domainauth.RoleBroker, res.Account.Claims.PrimaryRole)
	assert.ElementsMatch(t,
		[]domainauth.SectionRole{domainauth.SectionQuotes, domainauth.SectionPolicies},
		res.Account.Claims.SectionRoles)
}

func TestClient_SignIn_BadPassword(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.SignIn(context.Background(), "broker@example.com", "wrong")
	assert.True(t, apperrors.IsInvalidCredentials(err), "got %v", err)
}

func TestClient_SignIn_UnknownEmail(t *testing.T) {
	client, _ := newTestClient(t)

	// Unknown accounts produce the same error as a bad password.
	_, err := client.SignIn(context.Background(), "ghost@example.com", "s3cret")
	assert.True(t, apperrors.IsInvalidCredentials(err), "got %v", err)
}

func TestClient_SignIn_Disabled(t *testing.T) {
	client, backend := newTestClient(t)
	backend.accounts["uid-1"]["disabled"] = true

	_, err := client.SignIn(context.Background(), "broker@example.com", "s3cret")
	assert.Equal(t, apperrors.ErrCodeUserDisabled, apperrors.GetCode(err))
}

func TestClient_GetAccount(t *testing.T) {
	client, _ := newTestClient(t)

	acct, err := client.GetAccount(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.Equal(t, "broker@example.com", acct.Email)
	assert.Equal(t, "Pat Broker", acct.DisplayName)
}

func TestClient_GetAccount_NotFound(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.GetAccount(context.Background(), "uid-ghost")
	assert.True(t, apperrors.IsUserNotFound(err), "got %v", err)
}

func TestClient_SetCustomClaims(t *testing.T) {
	client, _ := newTestClient(t)

	claims := domainauth.RoleClaims{
		PrimaryRole:  domainauth.RoleAdmin,
		SectionRoles: []domainauth.SectionRole{domainauth.SectionManagement},
	}
	require.NoError(t, client.SetCustomClaims(context.Background(), "uid-1", claims))

	acct, err := client.GetAccount(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.True(t, claims.Equal(acct.Claims))
}

func TestClient_SetDisabled(t *testing.T) {
	client, _ := newTestClient(t)

	require.NoError(t, client.SetDisabled(context.Background(), "uid-1", true))

	acct, err := client.GetAccount(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.True(t, acct.Disabled)
}

func TestClient_SignOut_MovesValidSince(t *testing.T) {
	client, backend := newTestClient(t)

	require.NoError(t, client.SignOut(context.Background(), "uid-1"))
	assert.Contains(t, backend.lastUpdate, "validSince")
}

func TestClient_SendPasswordReset(t *testing.T) {
	client, _ := newTestClient(t)

	require.NoError(t, client.SendPasswordReset(context.Background(), "broker@example.com"))

	err := client.SendPasswordReset(context.Background(), "ghost@example.com")
	assert.True(t, apperrors.IsInvalidCredentials(err), "got %v", err)
}

func TestClient_ExtractClaims_Malformed(t *testing.T) {
	client, backend := newTestClient(t)
	backend.accounts["uid-1"]["customAttributes"] = "{not json"

	acct, err := client.GetAccount(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.Empty(t, acct.Claims.PrimaryRole)
	assert.Empty(t, acct.Claims.SectionRoles)
}

func TestTranslateBackendCode(t *testing.T) {
	tests := []struct {
		code string
		want apperrors.ErrorCode
	}{
		{"EMAIL_NOT_FOUND", apperrors.ErrCodeInvalidCredentials},
		{"INVALID_PASSWORD", apperrors.ErrCodeInvalidCredentials},
		{"INVALID_LOGIN_CREDENTIALS", apperrors.ErrCodeInvalidCredentials},
		{"USER_DISABLED", apperrors.ErrCodeUserDisabled},
		{"EMAIL_EXISTS", apperrors.ErrCodeUserExists},
		{"USER_NOT_FOUND", apperrors.ErrCodeUserNotFound},
		{"TOO_MANY_ATTEMPTS_TRY_LATER : try again later", apperrors.ErrCodeUnknown},
		{"TOKEN_EXPIRED", apperrors.ErrCodeInvalidSession},
		{"SOMETHING_ELSE", apperrors.ErrCodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, translateBackendCode(tt.code).Code)
		})
	}
}
