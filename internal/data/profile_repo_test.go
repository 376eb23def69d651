package data

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/brokerhaus/portal-api/internal/domain/auth"
	apperrors "github.com/brokerhaus/portal-api/internal/errors"
	"github.com/brokerhaus/portal-api/internal/testutil"
)

func testProfile(uid string) domainauth.UserProfile {
	return domainauth.UserProfile{
		UID:   uid,
		Email: fmt.Sprintf("%s@example.com", uid),
		Roles: domainauth.RoleClaims{
			PrimaryRole:  domainauth.RoleBroker,
			SectionRoles: []domainauth.SectionRole{domainauth.SectionQuotes, domainauth.SectionPolicies},
		},
		DisplayName: "Test Broker",
	}
}

func TestProfileRepo_Create_Get(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewProfileRepo(db)

		uid := fmt.Sprintf("u-%d", time.Now().UnixNano())
		created, err := repo.Create(ctx, testProfile(uid))
		require.NoError(t, err)
		assert.Equal(t, uid, created.UID)
		assert.NotZero(t, created.CreatedAt)
		assert.False(t, created.Blocked)
		assert.False(t, created.IsOnline)

		got, err := repo.Get(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, created.Email, got.Email)
		assert.Equal(t, domainauth.RoleBroker, got.Roles.PrimaryRole)
		assert.ElementsMatch(t,
			[]domainauth.SectionRole{domainauth.SectionQuotes, domainauth.SectionPolicies},
			got.Roles.SectionRoles)

		byEmail, err := repo.GetByEmail(ctx, created.Email)
		require.NoError(t, err)
		assert.Equal(t, uid, byEmail.UID)
	})
}

func TestProfileRepo_Get_NotFound(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewProfileRepo(db)
		_, err := repo.Get(context.Background(), "no-such-uid")
		assert.True(t, apperrors.IsUserNotFound(err), "got %v", err)
	})
}

func TestProfileRepo_Create_DuplicateEmail(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewProfileRepo(db)

		uid := fmt.Sprintf("u-%d", time.Now().UnixNano())
		first := testProfile(uid)
		_, err := repo.Create(ctx, first)
		require.NoError(t, err)

		second := testProfile(uid + "-other")
		second.Email = first.Email
		_, err = repo.Create(ctx, second)
		assert.Equal(t, apperrors.ErrCodeUserExists, apperrors.GetCode(err))
	})
}

func TestProfileRepo_Create_InvalidRole(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewProfileRepo(db)
		p := testProfile("u-bad-role")
		p.Roles.PrimaryRole = "manager"
		_, err := repo.Create(context.Background(), p)
		assert.True(t, apperrors.IsValidation(err), "got %v", err)
	})
}

func TestProfileRepo_UpdateRoles(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewProfileRepo(db)

		uid := fmt.Sprintf("u-%d", time.Now().UnixNano())
		_, err := repo.Create(ctx, testProfile(uid))
		require.NoError(t, err)

		newClaims := domainauth.RoleClaims{
			PrimaryRole:  domainauth.RoleAdmin,
			SectionRoles: []domainauth.SectionRole{domainauth.SectionManagement},
		}
		require.NoError(t, repo.UpdateRoles(ctx, uid, newClaims, "admin-1"))

		got, err := repo.Get(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, domainauth.RoleAdmin, got.Roles.PrimaryRole)
		assert.Equal(t, []domainauth.SectionRole{domainauth.SectionManagement}, got.Roles.SectionRoles)
		assert.Equal(t, "admin-1", got.UpdatedBy)

		err = repo.UpdateRoles(ctx, "no-such-uid", newClaims, "admin-1")
		assert.True(t, apperrors.IsUserNotFound(err), "got %v", err)
	})
}

func TestProfileRepo_UpdateVerification(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewProfileRepo(db)

		uid := fmt.Sprintf("u-%d", time.Now().UnixNano())
		_, err := repo.Create(ctx, testProfile(uid))
		require.NoError(t, err)

		require.NoError(t, repo.UpdateVerification(ctx, uid, true, "Renamed Broker"))

		got, err := repo.Get(ctx, uid)
		require.NoError(t, err)
		assert.True(t, got.EmailVerified)
		assert.Equal(t, "Renamed Broker", got.DisplayName)

		// An empty display name leaves the column untouched.
		require.NoError(t, repo.UpdateVerification(ctx, uid, false, ""))

		got, err = repo.Get(ctx, uid)
		require.NoError(t, err)
		assert.False(t, got.EmailVerified)
		assert.Equal(t, "Renamed Broker", got.DisplayName)

		err = repo.UpdateVerification(ctx, "no-such-uid", true, "")
		assert.True(t, apperrors.IsUserNotFound(err), "got %v", err)
	})
}

func TestProfileRepo_UpdateActivity(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewProfileRepo(db)

		uid := fmt.Sprintf("u-%d", time.Now().UnixNano())
		_, err := repo.Create(ctx, testProfile(uid))
		require.NoError(t, err)

		loginAt := time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, repo.UpdateActivity(ctx, uid, true, loginAt, loginAt, "sess-1"))

		got, err := repo.Get(ctx, uid)
		require.NoError(t, err)
		assert.True(t, got.IsOnline)
		require.NotNil(t, got.LastLogin)
		assert.WithinDuration(t, loginAt, *got.LastLogin, time.Second)
		assert.Equal(t, "sess-1", got.SessionID)

		// Going offline clears the session pointer but keeps timestamps.
		require.NoError(t, repo.UpdateActivity(ctx, uid, false, time.Time{}, time.Time{}, ""))

		got, err = repo.Get(ctx, uid)
		require.NoError(t, err)
		assert.False(t, got.IsOnline)
		assert.Empty(t, got.SessionID)
		require.NotNil(t, got.LastLogin)
		assert.WithinDuration(t, loginAt, *got.LastLogin, time.Second)
	})
}
