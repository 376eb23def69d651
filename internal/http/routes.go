package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/brokerhaus/portal-api/internal/domain/watchdog"
	apperrors "github.com/brokerhaus/portal-api/internal/errors"
	"github.com/brokerhaus/portal-api/internal/ports"
	"github.com/brokerhaus/portal-api/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth     *service.AuthService
	Identity *service.IdentityService
	Validate *service.SessionService
	Sessions ports.SessionStore

	Watchdog  watchdog.Config
	Cookies   CookieSettings
	PathRules []PathRule // Optional: defaults to DefaultPathRules

	Logger *slog.Logger     // Optional
	Now    func() time.Time // Optional clock for handlers
}

// NewRouter creates and configures the portal HTTP handler: the /auth
// action endpoints, the internal validation endpoint, and the protected
// application area behind the gatekeeper.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	authHandlers := &AuthHandlers{
		Auth:     services.Auth,
		Identity: services.Identity,
		Validate: services.Validate,
		Sessions: services.Sessions,
		Watchdog: services.Watchdog,
		Cookies:  services.Cookies,
		Logger:   logger,
		Now:      services.Now,
	}
	sessionHandlers := &SessionHandlers{Validate: services.Validate}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/login", authHandlers.Login)
	mux.HandleFunc("POST /auth/logout", authHandlers.Logout)
	mux.HandleFunc("GET /auth/session", authHandlers.Session)
	mux.HandleFunc("GET /auth/session-state", authHandlers.SessionState)
	mux.HandleFunc("POST /auth/activity", authHandlers.Activity)
	mux.HandleFunc("POST /auth/recover", authHandlers.Recover)
	mux.HandleFunc("POST /auth/resend-verification", authHandlers.ResendVerification)

	mux.HandleFunc("POST /internal/session/validate", sessionHandlers.ValidateSession)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// The protected area itself. Real pages are rendered by the front
	// end; the server answers with the claims the gatekeeper resolved so
	// the shell knows what to draw.
	mux.HandleFunc("/app/", func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetClaimsFromContext(r.Context())
		if !ok {
			WriteFailure(w, apperrors.Unauthorized("Authentication required"))
			return
		}
		WriteSuccess(w, map[string]any{
			"roles":    claims,
			"sections": claims.EffectiveSections(),
		})
	})

	gatekeeper := Gatekeeper(GatekeeperOptions{
		Liveness: services.Validate,
		Rules:    services.PathRules,
		Cookies:  services.Cookies,
		Logger:   logger,
	})

	return Chain(mux,
		Recover(logger),
		Logging(logger),
		gatekeeper,
	)
}
