package httpx

import (
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/brokerhaus/portal-api/internal/domain/auth"
	"github.com/brokerhaus/portal-api/internal/domain/watchdog"
	apperrors "github.com/brokerhaus/portal-api/internal/errors"
	"github.com/brokerhaus/portal-api/internal/ports"
	"github.com/brokerhaus/portal-api/internal/service"
)

// AuthHandlers serves the /auth action endpoints consumed by the portal
// front end. Every response uses the normalized success/error envelope.
type AuthHandlers struct {
	Auth     *service.AuthService
	Identity *service.IdentityService
	Validate *service.SessionService
	Sessions ports.SessionStore
	Watchdog watchdog.Config
	Cookies  CookieSettings
	Logger   *slog.Logger

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

func (h *AuthHandlers) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

// Login handles POST /auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		WriteFailure(w, apperrors.Validation("Email and password are required"))
		return
	}

	result, err := h.Auth.Login(r.Context(), service.LoginRequest{
		Email:      req.Email,
		Password:   req.Password,
		RememberMe: req.RememberMe,
		Device:     deviceFromRequest(r),
	})
	if err != nil {
		WriteFailure(w, err)
		return
	}

	SetSessionCookie(w, h.Cookies, result.Token, req.RememberMe)
	WriteSuccess(w, result.Profile)
}

// Logout handles POST /auth/logout. The cookie is cleared even when no
// matching session exists server-side.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	token := sessionTokenFromRequest(r)
	ClearSessionCookie(w, h.Cookies)
	if token == "" {
		WriteSuccess(w, nil)
		return
	}

	if err := h.Auth.Logout(r.Context(), token); err != nil {
		WriteFailure(w, err)
		return
	}
	WriteSuccess(w, nil)
}

// Session handles GET /auth/session: the authoritative session check
// returning the merged profile.
func (h *AuthHandlers) Session(w http.ResponseWriter, r *http.Request) {
	token := sessionTokenFromRequest(r)
	profile, err := h.Validate.ValidateSession(r.Context(), token)
	if err != nil {
		WriteFailure(w, err)
		return
	}
	WriteSuccess(w, profile)
}

type sessionStateResponse struct {
	State        watchdog.State `json:"state"`
	RemainingMS  int64          `json:"remainingMs"`
	NextWakeupMS int64          `json:"nextWakeupMs"`
	AllowPing    bool           `json:"allowPing"`
}

// SessionState handles GET /auth/session-state: the watchdog state
// derivation the browser polls instead of running its own timer chains.
func (h *AuthHandlers) SessionState(w http.ResponseWriter, r *http.Request) {
	token := sessionTokenFromRequest(r)
	if token == "" {
		WriteFailure(w, apperrors.InvalidSession("No session token provided"))
		return
	}

	sess, err := h.Sessions.Get(r.Context(), token)
	if err != nil {
		WriteFailure(w, apperrors.InvalidSession("Session not found"))
		return
	}

	now := h.now()
	state := h.Watchdog.StateAt(sess.LastActivity, now)
	if !sess.Live(now) {
		state = watchdog.StateExpired
	}

	WriteSuccess(w, sessionStateResponse{
		State:        state,
		RemainingMS:  h.Watchdog.Remaining(sess.LastActivity, now).Milliseconds(),
		NextWakeupMS: h.Watchdog.NextWakeup(sess.LastActivity, now).Sub(now).Milliseconds(),
		AllowPing:    watchdog.AllowPing(state) && sess.Live(now),
	})
}

type activityRequest struct {
	IsOnline bool `json:"isOnline"`
}

// Activity handles POST /auth/activity: the debounced activity ping.
// Pings are rejected while the warning dialog is showing, so an open
// dialog cannot silently reset the timeout it warns about.
func (h *AuthHandlers) Activity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	token := sessionTokenFromRequest(r)
	if token == "" {
		WriteFailure(w, apperrors.InvalidSession("No session token provided"))
		return
	}

	sess, err := h.Sessions.Get(r.Context(), token)
	if err != nil {
		WriteFailure(w, apperrors.InvalidSession("Session not found"))
		return
	}

	now := h.now()
	if !sess.Live(now) {
		WriteFailure(w, apperrors.InvalidSession("Session has expired"))
		return
	}
	if state := h.Watchdog.StateAt(sess.LastActivity, now); !watchdog.AllowPing(state) {
		WriteFailure(w, apperrors.Validation("Activity ping rejected while the session warning is active"))
		return
	}

	if err := h.Identity.UpdateUserActivity(r.Context(), sess.UserID, req.IsOnline, token); err != nil {
		WriteFailure(w, err)
		return
	}
	WriteSuccess(w, nil)
}

type recoverRequest struct {
	Email string `json:"email"`
}

// Recover handles POST /auth/recover. The response is identical whether
// or not the account exists.
func (h *AuthHandlers) Recover(w http.ResponseWriter, r *http.Request) {
	var req recoverRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" {
		WriteFailure(w, apperrors.Validation("Email is required"))
		return
	}

	if err := h.Identity.RecoverAccess(r.Context(), req.Email); err != nil {
		if h.Logger != nil {
			h.Logger.ErrorContext(r.Context(), "recover access failed", "error", err)
		}
		WriteFailure(w, err)
		return
	}
	WriteSuccess(w, nil)
}

// ResendVerification handles POST /auth/resend-verification with the
// same uniform-response contract as Recover.
func (h *AuthHandlers) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req recoverRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" {
		WriteFailure(w, apperrors.Validation("Email is required"))
		return
	}

	if err := h.Identity.ResendVerification(r.Context(), req.Email); err != nil {
		WriteFailure(w, err)
		return
	}
	WriteSuccess(w, nil)
}

// deviceFromRequest captures the client device for the session record.
func deviceFromRequest(r *http.Request) domainauth.DeviceInfo {
	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		ip = r.RemoteAddr
	}
	return domainauth.DeviceInfo{UserAgent: r.UserAgent(), IP: ip}
}
