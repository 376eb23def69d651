package httpx

import (
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	domainauth "github.com/brokerhaus/portal-api/internal/domain/auth"
	"github.com/brokerhaus/portal-api/internal/service"
)

const (
	// ProtectedPrefix is the authenticated area of the application.
	ProtectedPrefix = "/app"

	// LoginPath receives redirects for unauthenticated requests.
	LoginPath = "/login"

	// UnauthorizedPath receives redirects for authenticated requests
	// whose roles do not reach the requested section.
	UnauthorizedPath = "/unauthorized"
)

// PathRule maps a path prefix to the section roles that may enter it.
type PathRule struct {
	Prefix   string
	Sections []domainauth.SectionRole
}

// DefaultPathRules is the protected-path table: one entry per portal
// section. Protected paths with no matching rule are allowed for any
// authenticated user.
func DefaultPathRules() []PathRule {
	return []PathRule{
		{Prefix: "/app/management", Sections: []domainauth.SectionRole{domainauth.SectionManagement}},
		{Prefix: "/app/dashboard", Sections: []domainauth.SectionRole{domainauth.SectionDashboard}},
		{Prefix: "/app/quotes", Sections: []domainauth.SectionRole{domainauth.SectionQuotes}},
		{Prefix: "/app/policies", Sections: []domainauth.SectionRole{domainauth.SectionPolicies}},
		{Prefix: "/app/claims", Sections: []domainauth.SectionRole{domainauth.SectionClaims}},
		{Prefix: "/app/clients", Sections: []domainauth.SectionRole{domainauth.SectionClients}},
		{Prefix: "/app/reports", Sections: []domainauth.SectionRole{domainauth.SectionReports}},
		{Prefix: "/app/portal", Sections: []domainauth.SectionRole{domainauth.SectionPortal}},
	}
}

// GatekeeperOptions groups dependencies for the Gatekeeper middleware.
type GatekeeperOptions struct {
	Liveness *service.SessionService // Required: liveness fast path
	Rules    []PathRule              // Optional: defaults to DefaultPathRules
	Cookies  CookieSettings
	Logger   *slog.Logger // Optional
}

// Gatekeeper returns the edge authorization middleware. Requests outside
// the protected area pass through untouched. Protected requests need a
// live session cookie and role claims that intersect the matched path
// rule; failures redirect to login (clearing the stale cookie) or to the
// unauthorized page. The check is stateless across requests and runs on
// cached claims whenever the cache is warm.
func Gatekeeper(opts GatekeeperOptions) Middleware {
	rules := opts.Rules
	if rules == nil {
		rules = DefaultPathRules()
	}
	// Longest prefix first, so the first match wins below.
	sorted := make([]PathRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := StripLocale(r.URL.Path)
			if !isProtected(path) {
				next.ServeHTTP(w, r)
				return
			}

			token := sessionTokenFromRequest(r)
			if token == "" {
				redirectToLogin(w, r, opts.Cookies)
				return
			}

			claims, live, err := opts.Liveness.CheckLiveness(r.Context(), token)
			if err != nil {
				if opts.Logger != nil {
					opts.Logger.ErrorContext(r.Context(), "liveness check failed", "error", err)
				}
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			if !live {
				redirectToLogin(w, r, opts.Cookies)
				return
			}

			if rule, ok := matchRule(sorted, path); ok {
				if !sectionsIntersect(claims.EffectiveSections(), rule.Sections) {
					if opts.Logger != nil {
						opts.Logger.WarnContext(r.Context(), "section access denied",
							"path", path,
							"primary_role", string(claims.PrimaryRole),
						)
					}
					http.Redirect(w, r, UnauthorizedPath, http.StatusFound)
					return
				}
			}

			ctx := SetClaimsInContext(r.Context(), claims)
			ctx = SetSessionTokenInContext(ctx, token)
			// Serve the locale-stripped path so routes match regardless
			// of the locale prefix.
			r2 := r.Clone(ctx)
			r2.URL.Path = path
			next.ServeHTTP(w, r2)
		})
	}
}

// StripLocale removes a leading locale segment ("/en", "/es-MX") from the
// path, leaving the application path.
func StripLocale(path string) string {
	rest := strings.TrimPrefix(path, "/")
	seg, tail, _ := strings.Cut(rest, "/")
	if !isLocaleSegment(seg) {
		return path
	}
	if tail == "" {
		return "/"
	}
	return "/" + tail
}

// isLocaleSegment matches "en" / "es" style language tags, with an
// optional region ("en-US").
func isLocaleSegment(seg string) bool {
	lang, region, hasRegion := strings.Cut(seg, "-")
	if len(lang) != 2 || !isAlpha(lang) {
		return false
	}
	if hasRegion && (len(region) != 2 || !isAlpha(region)) {
		return false
	}
	return true
}

func isAlpha(s string) bool {
	for _, c := range s {
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

func isProtected(path string) bool {
	return path == ProtectedPrefix || strings.HasPrefix(path, ProtectedPrefix+"/")
}

// matchRule returns the longest-prefix rule covering path, if any.
func matchRule(sorted []PathRule, path string) (PathRule, bool) {
	for _, rule := range sorted {
		if path == rule.Prefix || strings.HasPrefix(path, rule.Prefix+"/") {
			return rule, true
		}
	}
	return PathRule{}, false
}

func sectionsIntersect(held, required []domainauth.SectionRole) bool {
	for _, h := range held {
		for _, r := range required {
			if h == r {
				return true
			}
		}
	}
	return false
}

// redirectToLogin clears any stale cookie and sends the browser to the
// login page with a redirect parameter pointing back at the original URL.
func redirectToLogin(w http.ResponseWriter, r *http.Request, cs CookieSettings) {
	ClearSessionCookie(w, cs)
	target := LoginPath + "?redirect=" + url.QueryEscape(r.URL.RequestURI())
	http.Redirect(w, r, target, http.StatusFound)
}
