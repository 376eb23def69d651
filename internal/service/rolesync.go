package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/brokerhaus/portal-api/config"
	domainauth "github.com/brokerhaus/portal-api/internal/domain/auth"
	apperrors "github.com/brokerhaus/portal-api/internal/errors"
	"github.com/brokerhaus/portal-api/internal/ports"
)

// roleSyncActor is the audit identity stamped on directory rows the
// synchronizer rewrites.
const roleSyncActor = "role-sync"

// RoleSyncServiceOptions groups dependencies for RoleSyncService.
type RoleSyncServiceOptions struct {
	Backend       ports.IdentityBackend // Required: identity backend
	Profiles      ports.ProfileStore    // Required: user directory
	SourceOfTruth config.SourceOfTruth  // Optional: defaults to primary
	Logger        *slog.Logger          // Optional: structured logger
}

// RoleSyncService reconciles the role claim pair held in the user
// directory and as identity-backend custom claims. Reconciliation is
// one-directional: the configured source of truth always wins, the other
// store is overwritten. Equal pairs produce no writes, so the sync is
// idempotent and safe to run on every login.
type RoleSyncService struct {
	backend       ports.IdentityBackend
	profiles      ports.ProfileStore
	sourceOfTruth config.SourceOfTruth
	logger        *slog.Logger
}

// NewRoleSyncService constructs a new RoleSyncService.
func NewRoleSyncService(opts RoleSyncServiceOptions) (*RoleSyncService, error) {
	if opts.Backend == nil {
		return nil, errors.New("IdentityBackend is required")
	}
	if opts.Profiles == nil {
		return nil, errors.New("ProfileStore is required")
	}

	sourceOfTruth := opts.SourceOfTruth
	if sourceOfTruth == "" {
		sourceOfTruth = config.SourceOfTruthPrimary
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "role_sync_service")
	}

	return &RoleSyncService{
		backend:       opts.Backend,
		profiles:      opts.Profiles,
		sourceOfTruth: sourceOfTruth,
		logger:        logger,
	}, nil
}

// SyncRoles reads the claim pair from both stores and reconciles it,
// returning the authoritative claims.
func (s *RoleSyncService) SyncRoles(ctx context.Context, uid string) (domainauth.RoleClaims, error) {
	profile, err := s.profiles.Get(ctx, uid)
	if err != nil {
		return domainauth.RoleClaims{}, apperrors.Wrap(err, apperrors.ErrCodeSyncFailure, "failed to read directory roles")
	}
	account, err := s.backend.GetAccount(ctx, uid)
	if err != nil {
		return domainauth.RoleClaims{}, apperrors.Wrap(err, apperrors.ErrCodeSyncFailure, "failed to read backend claims")
	}
	return s.SyncClaims(ctx, uid, profile.Roles, account.Claims)
}

// SyncClaims reconciles an already-read claim pair for one user. Login
// uses this form so the directory row and backend account fetched during
// authentication are not read a second time.
func (s *RoleSyncService) SyncClaims(ctx context.Context, uid string, directory, backend domainauth.RoleClaims) (domainauth.RoleClaims, error) {
	if directory.Equal(backend) {
		return directory, nil
	}

	switch s.sourceOfTruth {
	case config.SourceOfTruthSecondary:
		if err := s.profiles.UpdateRoles(ctx, uid, backend, roleSyncActor); err != nil {
			return domainauth.RoleClaims{}, apperrors.Wrap(err, apperrors.ErrCodeSyncFailure, "failed to overwrite directory roles")
		}
		s.logSync(ctx, uid, directory, backend)
		return backend, nil
	default:
		if err := s.backend.SetCustomClaims(ctx, uid, directory); err != nil {
			return domainauth.RoleClaims{}, apperrors.Wrap(err, apperrors.ErrCodeSyncFailure, "failed to overwrite backend claims")
		}
		s.logSync(ctx, uid, backend, directory)
		return directory, nil
	}
}

func (s *RoleSyncService) logSync(ctx context.Context, uid string, stale, winner domainauth.RoleClaims) {
	if s.logger == nil {
		return
	}
	s.logger.InfoContext(ctx, "role claims reconciled",
		"uid", uid,
		"source_of_truth", string(s.sourceOfTruth),
		"stale_primary_role", string(stale.PrimaryRole),
		"primary_role", string(winner.PrimaryRole),
	)
}
