package httpx

import (
	"context"

	domainauth "github.com/brokerhaus/portal-api/internal/domain/auth"
)

// claimsKey is an unexported context key type to avoid collisions across packages.
// Centralized in this file so all handlers/middleware use the same keys.
type claimsKey struct{}

type sessionTokenKey struct{}

// SetClaimsInContext returns a child context carrying the role claims the
// gatekeeper resolved for this request.
func SetClaimsInContext(ctx context.Context, claims domainauth.RoleClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// GetClaimsFromContext returns the request's role claims and a boolean
// indicating presence.
func GetClaimsFromContext(ctx context.Context) (domainauth.RoleClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(domainauth.RoleClaims)
	return claims, ok
}

// SetSessionTokenInContext returns a child context carrying the validated
// session token.
func SetSessionTokenInContext(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionTokenKey{}, token)
}

// GetSessionTokenFromContext returns the validated session token, or ""
// when the request is unauthenticated.
func GetSessionTokenFromContext(ctx context.Context) string {
	if token, ok := ctx.Value(sessionTokenKey{}).(string); ok {
		return token
	}
	return ""
}
