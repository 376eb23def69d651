package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brokerhaus/portal-api/config"
	domainauth "github.com/brokerhaus/portal-api/internal/domain/auth"
)

func adminClaims() domainauth.RoleClaims {
	return domainauth.RoleClaims{
		PrimaryRole:  domainauth.RoleAdmin,
		SectionRoles: []domainauth.SectionRole{domainauth.SectionManagement},
	}
}

func TestNewRoleSyncService_RequiresDependencies(t *testing.T) {
	_, err := NewRoleSyncService(RoleSyncServiceOptions{})
	assert.Error(t, err)
}

func TestRoleSyncService_PrimaryOverwritesBackend(t *testing.T) {
	env := newTestEnv(t, envOptions{sourceOfTruth: config.SourceOfTruthPrimary})
	env.seedUser("u1", "u1@example.com", "pw", quotesBrokerClaims())
	// Backend drifted to admin claims.
	require.NoError(t, env.backend.SetCustomClaims(context.Background(), "u1", adminClaims()))
	env.backend.ClaimsSet = map[string]domainauth.RoleClaims{}

	got, err := env.roleSync.SyncRoles(context.Background(), "u1")
	require.NoError(t, err)

	assert.True(t, got.Equal(quotesBrokerClaims()), "directory claims win under primary")
	assert.True(t, env.backend.ClaimsSet["u1"].Equal(quotesBrokerClaims()))
	assert.Empty(t, env.profiles.RoleUpdates, "directory must not be rewritten")
}

func TestRoleSyncService_SecondaryOverwritesDirectory(t *testing.T) {
	env := newTestEnv(t, envOptions{sourceOfTruth: config.SourceOfTruthSecondary})
	env.seedUser("u1", "u1@example.com", "pw", quotesBrokerClaims())
	require.NoError(t, env.backend.SetCustomClaims(context.Background(), "u1", adminClaims()))
	env.backend.ClaimsSet = map[string]domainauth.RoleClaims{}

	got, err := env.roleSync.SyncRoles(context.Background(), "u1")
	require.NoError(t, err)

	assert.True(t, got.Equal(adminClaims()), "backend claims win under secondary")
	assert.Equal(t, []string{"u1"}, env.profiles.RoleUpdates)
	assert.Empty(t, env.backend.ClaimsSet, "backend must not be rewritten")

	profile, err := env.profiles.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, profile.Roles.Equal(adminClaims()))
}

func TestRoleSyncService_Idempotent(t *testing.T) {
	env := newTestEnv(t, envOptions{sourceOfTruth: config.SourceOfTruthPrimary})
	env.seedUser("u1", "u1@example.com", "pw", quotesBrokerClaims())

	// Equal pairs produce no writes, however many times the sync runs.
	for i := 0; i < 2; i++ {
		got, err := env.roleSync.SyncRoles(context.Background(), "u1")
		require.NoError(t, err)
		assert.True(t, got.Equal(quotesBrokerClaims()))
	}
	assert.Empty(t, env.backend.ClaimsSet)
	assert.Empty(t, env.profiles.RoleUpdates)
}

func TestRoleSyncService_OrderIndependentComparison(t *testing.T) {
	env := newTestEnv(t, envOptions{sourceOfTruth: config.SourceOfTruthPrimary})
	directory := quotesBrokerClaims()
	reversed := domainauth.RoleClaims{
		PrimaryRole:  directory.PrimaryRole,
		SectionRoles: []domainauth.SectionRole{directory.SectionRoles[1], directory.SectionRoles[0]},
	}

	got, err := env.roleSync.SyncClaims(context.Background(), "u1", directory, reversed)
	require.NoError(t, err)
	assert.True(t, got.Equal(directory))
	assert.Empty(t, env.backend.ClaimsSet, "reordered sections are not a mismatch")
}

func TestRoleSyncService_MissingUser(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	_, err := env.roleSync.SyncRoles(context.Background(), "ghost")
	assert.Error(t, err)
}
