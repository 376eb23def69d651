// Package reaper provides the adapter for running the session reaper loop.
package reaper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/brokerhaus/portal-api/config"
	"github.com/brokerhaus/portal-api/internal/data"
	"github.com/brokerhaus/portal-api/internal/ports"
	"github.com/brokerhaus/portal-api/internal/service"
)

// Runner provides a simple adapter to run the session reaper loop.
// It constructs the reaper service over the Postgres repositories and
// runs the sweep loop.
type Runner struct {
	reaper *service.ReaperService
	logger *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	Config config.ReaperConfig
	Logger *slog.Logger

	// Optional dependency injection for testing/decoupling
	Sessions ports.SessionStore
	Profiles ports.ProfileStore
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	sessions := opts.Sessions
	if sessions == nil {
		sessions = data.NewSessionRepo(opts.DB)
	}
	profiles := opts.Profiles
	if profiles == nil {
		profiles = data.NewProfileRepo(opts.DB)
	}

	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Sessions: sessions,
		Profiles: profiles,
		Config:   opts.Config,
		Logger:   opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}

	return &Runner{reaper: reaper, logger: opts.Logger}, nil
}

// validateRunnerOptions validates and sets defaults for RunnerOptions.
func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.DB == nil && (opts.Sessions == nil || opts.Profiles == nil) {
		return errors.New("database connection is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

// Run starts the reaper loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner")
	return r.reaper.Run(ctx)
}
