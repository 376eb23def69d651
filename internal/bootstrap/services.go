package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/brokerhaus/portal-api/config"
	"github.com/brokerhaus/portal-api/internal/adapters/idp"
	redisadapter "github.com/brokerhaus/portal-api/internal/adapters/redis"
	"github.com/brokerhaus/portal-api/internal/data"
	domainauth "github.com/brokerhaus/portal-api/internal/domain/auth"
	"github.com/brokerhaus/portal-api/internal/ports"
	"github.com/brokerhaus/portal-api/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	RoleSync *service.RoleSyncService
	Identity *service.IdentityService
	Validate *service.SessionService
	Auth     *service.AuthService

	// Ports exposed for handlers that read the stores directly.
	Sessions ports.SessionStore
	Profiles ports.ProfileStore
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// NewServices wires the identity backend client, the Postgres
// repositories, the Redis claims cache, and the services over them.
// The permission matrix is checked once here so a gap fails startup
// instead of surfacing as a missing section at request time.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, fmt.Errorf("service deps and config are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := domainauth.ValidateMatrix(); err != nil {
		return ServiceContainer{}, fmt.Errorf("permission matrix: %w", err)
	}

	backend, err := buildIdentityBackend(ctx, deps.Config.Auth.Backend)
	if err != nil {
		return ServiceContainer{}, err
	}

	profiles := data.NewProfileRepo(deps.DB)
	sessions := data.NewSessionRepo(deps.DB)

	var cache ports.ClaimsCache
	if deps.RedisClient != nil {
		cache = redisadapter.NewClaimsCache(deps.RedisClient)
	} else {
		logger.Warn("claims cache disabled: redis client not configured")
	}

	roleSync, err := service.NewRoleSyncService(service.RoleSyncServiceOptions{
		Backend:       backend,
		Profiles:      profiles,
		SourceOfTruth: deps.Config.Auth.SourceOfTruth,
		Logger:        logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire role sync service: %w", err)
	}

	identity, err := service.NewIdentityService(service.IdentityServiceOptions{
		Backend:  backend,
		Profiles: profiles,
		Sessions: sessions,
		RoleSync: roleSync,
		Cache:    cache,
		Logger:   logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire identity service: %w", err)
	}

	validate, err := service.NewSessionService(service.SessionServiceOptions{
		Sessions:    sessions,
		Profiles:    profiles,
		Identity:    identity,
		Cache:       cache,
		LivenessTTL: deps.Config.Session.LivenessTTL,
		Logger:      logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire session service: %w", err)
	}

	auth, err := service.NewAuthService(service.AuthServiceOptions{
		Identity:             identity,
		Sessions:             sessions,
		Profiles:             profiles,
		Backend:              backend,
		Liveness:             validate,
		EnforceSingleSession: deps.Config.Auth.EnforceSingleSession,
		Logger:               logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire auth service: %w", err)
	}

	return ServiceContainer{
		RoleSync: roleSync,
		Identity: identity,
		Validate: validate,
		Auth:     auth,
		Sessions: sessions,
		Profiles: profiles,
	}, nil
}

func buildIdentityBackend(ctx context.Context, cfg config.IdentityBackendConfig) (*idp.Client, error) {
	client, err := idp.NewClient(ctx, idp.Config{
		BaseURL:             cfg.BaseURL,
		IssuerURL:           cfg.IssuerURL,
		ClientID:            cfg.ClientID,
		TokenURL:            cfg.TokenURL,
		ServiceClientID:     cfg.ServiceClientID,
		ServiceClientSecret: cfg.ServiceClientSecret,
		Scopes:              cfg.Scopes,
		PrimaryRolePath:     cfg.PrimaryRolePath,
		SectionRolesPath:    cfg.SectionRolesPath,
	})
	if err != nil {
		return nil, fmt.Errorf("wire identity backend: %w", err)
	}
	return client, nil
}
