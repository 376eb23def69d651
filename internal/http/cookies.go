package httpx

import (
	"net/http"

	domainauth "github.com/brokerhaus/portal-api/internal/domain/auth"
)

// SessionCookieName is the cookie carrying the opaque session token.
const SessionCookieName = "session_id"

// CookieSettings carries the deploy-specific cookie attributes.
type CookieSettings struct {
	// Domain scopes the cookie; empty uses the request domain.
	Domain string
	// Secure should only be false for plain-HTTP local development.
	Secure bool
}

// SetSessionCookie writes the session cookie. Remember-me logins persist
// for the long session window; otherwise the cookie lives until the
// browser closes while the server record enforces the real expiry.
func SetSessionCookie(w http.ResponseWriter, cs CookieSettings, token string, rememberMe bool) {
	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   cs.Domain,
		HttpOnly: true,
		Secure:   cs.Secure,
		SameSite: http.SameSiteStrictMode,
	}
	if rememberMe {
		cookie.MaxAge = int(domainauth.SessionTTLRememberMe.Seconds())
	}
	http.SetCookie(w, cookie)
}

// ClearSessionCookie expires the session cookie. Attributes must mirror
// SetSessionCookie or browsers will keep the original.
func ClearSessionCookie(w http.ResponseWriter, cs CookieSettings) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   cs.Domain,
		HttpOnly: true,
		Secure:   cs.Secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
}

// sessionTokenFromRequest returns the session token cookie value, or "".
func sessionTokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
