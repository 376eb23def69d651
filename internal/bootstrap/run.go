package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/brokerhaus/portal-api/config"
	"github.com/brokerhaus/portal-api/internal/adapters/reaper"
)

// ServiceOrchestrationConfig contains dependencies for running services.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// RunServicesWithShutdown starts all enabled services and manages their
// lifecycle. It blocks until a shutdown signal is received or a service
// fails, then stops the remaining services.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)

	if cfg.Config.IsHTTPServerEnabled() {
		server := StartHTTPServer(&HTTPServerConfig{
			Config:   cfg.Config,
			Services: cfg.Services,
			Logger:   logger,
		})
		group.Go(func() error {
			// Block until shutdown is requested, then drain the server.
			<-gctx.Done()
			return ShutdownHTTPServer(ShutdownConfig{
				Context: context.Background(),
				Server:  server,
				Logger:  logger,
			})
		})
	}

	if cfg.Config.IsReaperEnabled() {
		runner, err := reaper.NewRunner(reaper.RunnerOptions{
			DB:     cfg.DB,
			Config: cfg.Config.Reaper,
			Logger: logger,
		})
		if err != nil {
			stop()
			if werr := group.Wait(); werr != nil {
				err = errors.Join(err, werr)
			}
			return fmt.Errorf("start reaper: %w", err)
		}
		group.Go(func() error {
			return runner.Run(gctx)
		})
	}

	logger.Info("services running", "services", GetEnabledServices(cfg.Config))

	if err := group.Wait(); err != nil {
		return fmt.Errorf("service runtime: %w", err)
	}

	logger.Info("services stopped")
	return nil
}
