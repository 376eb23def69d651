package data

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	domainauth "github.com/brokerhaus/portal-api/internal/domain/auth"
	apperrors "github.com/brokerhaus/portal-api/internal/errors"
	"github.com/brokerhaus/portal-api/internal/data/pgxutil"
)

// ProfileRepo is the Postgres user directory, the business source of truth
// for roles and lifecycle flags.
type ProfileRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewProfileRepo creates a ProfileRepo with the system clock.
func NewProfileRepo(db *sql.DB) *ProfileRepo {
	return &ProfileRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewProfileRepoWithTime creates a ProfileRepo with an injected clock.
func NewProfileRepoWithTime(db *sql.DB, tp TimeProvider) *ProfileRepo {
	return &ProfileRepo{DB: db, timeProvider: tp}
}

// profileRow mirrors the users table for pgx struct scanning.
type profileRow struct {
	UID                   string     `db:"uid"`
	Email                 string     `db:"email"`
	EmailVerified         bool       `db:"email_verified"`
	DisplayName           string     `db:"display_name"`
	PrimaryRole           string     `db:"primary_role"`
	SectionRoles          []string   `db:"section_roles"`
	Blocked               bool       `db:"blocked"`
	Disabled              bool       `db:"disabled"`
	Deleted               bool       `db:"deleted"`
	AllowMultipleSessions bool       `db:"allow_multiple_sessions"`
	IsOnline              bool       `db:"is_online"`
	LastLogin             *time.Time `db:"last_login"`
	LastActivity          *time.Time `db:"last_activity"`
	SessionID             *string    `db:"session_id"`
	CreatedAt             time.Time  `db:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at"`
	CreatedBy             *string    `db:"created_by"`
	UpdatedBy             *string    `db:"updated_by"`
}

const profileColumns = `uid, email, email_verified, display_name,
	primary_role, section_roles, blocked, disabled, deleted,
	allow_multiple_sessions, is_online, last_login, last_activity,
	session_id, created_at, updated_at, created_by, updated_by`

func (row profileRow) toProfile() domainauth.UserProfile {
	sections := make([]domainauth.SectionRole, 0, len(row.SectionRoles))
	for _, s := range row.SectionRoles {
		sections = append(sections, domainauth.SectionRole(s))
	}
	p := domainauth.UserProfile{
		UID:           row.UID,
		Email:         row.Email,
		EmailVerified: row.EmailVerified,
		DisplayName:   row.DisplayName,
		Roles: domainauth.RoleClaims{
			PrimaryRole:  domainauth.PrimaryRole(row.PrimaryRole),
			SectionRoles: sections,
		},
		Blocked:               row.Blocked,
		Disabled:              row.Disabled,
		Deleted:               row.Deleted,
		AllowMultipleSessions: row.AllowMultipleSessions,
		IsOnline:              row.IsOnline,
		LastLogin:             row.LastLogin,
		LastActivity:          row.LastActivity,
		CreatedAt:             row.CreatedAt,
		UpdatedAt:             row.UpdatedAt,
	}
	if row.SessionID != nil {
		p.SessionID = *row.SessionID
	}
	if row.CreatedBy != nil {
		p.CreatedBy = *row.CreatedBy
	}
	if row.UpdatedBy != nil {
		p.UpdatedBy = *row.UpdatedBy
	}
	return p
}

func sectionsToStrings(sections []domainauth.SectionRole) []string {
	out := make([]string, 0, len(sections))
	for _, s := range sections {
		out = append(out, string(s))
	}
	return out
}

func (r *ProfileRepo) getByQuery(ctx context.Context, query string, arg any) (domainauth.UserProfile, error) {
	var row profileRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, arg)
		if err != nil {
			return err
		}
		defer rows.Close()
		row, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[profileRow])
		return err
	})
	if err != nil {
		return domainauth.UserProfile{}, apperrors.MapDBError(err)
	}
	return row.toProfile(), nil
}

// Get fetches a directory record by uid.
func (r *ProfileRepo) Get(ctx context.Context, uid string) (domainauth.UserProfile, error) {
	return r.getByQuery(ctx, `SELECT `+profileColumns+` FROM users WHERE uid = $1`, uid)
}

// GetByEmail fetches a directory record by email.
func (r *ProfileRepo) GetByEmail(ctx context.Context, email string) (domainauth.UserProfile, error) {
	return r.getByQuery(ctx, `SELECT `+profileColumns+` FROM users WHERE email = $1`, email)
}

// Create inserts a new directory record. Timestamps come from the repo
// clock; the database keeps them on conflict-free inserts only.
func (r *ProfileRepo) Create(ctx context.Context, profile domainauth.UserProfile) (domainauth.UserProfile, error) {
	if profile.UID == "" {
		return domainauth.UserProfile{}, apperrors.ValidationField("uid", "uid is required")
	}
	if !profile.Roles.PrimaryRole.Valid() {
		return domainauth.UserProfile{}, apperrors.ValidationField("primaryRole", "unknown primary role")
	}

	now := r.timeProvider.Now().UTC()
	var row profileRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO users (
				uid, email, email_verified, display_name,
				primary_role, section_roles, blocked, disabled, deleted,
				allow_multiple_sessions, created_at, updated_at, created_by
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11, NULLIF($12, ''))
			RETURNING `+profileColumns,
			profile.UID, profile.Email, profile.EmailVerified, profile.DisplayName,
			string(profile.Roles.PrimaryRole), sectionsToStrings(profile.Roles.SectionRoles),
			profile.Blocked, profile.Disabled, profile.Deleted,
			profile.AllowMultipleSessions, now, profile.CreatedBy,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		row, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[profileRow])
		return err
	})
	if err != nil {
		return domainauth.UserProfile{}, apperrors.MapDBError(err)
	}
	return row.toProfile(), nil
}

// UpdateRoles replaces the role claim pair on the directory record.
func (r *ProfileRepo) UpdateRoles(ctx context.Context, uid string, claims domainauth.RoleClaims, updatedBy string) error {
	if !claims.PrimaryRole.Valid() {
		return apperrors.ValidationField("primaryRole", "unknown primary role")
	}
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx, `
			UPDATE users
			SET primary_role = $2, section_roles = $3,
			    updated_at = $4, updated_by = NULLIF($5, '')
			WHERE uid = $1`,
			uid, string(claims.PrimaryRole), sectionsToStrings(claims.SectionRoles),
			r.timeProvider.Now().UTC(), updatedBy,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
	return apperrors.MapDBError(err)
}

// UpdateVerification stamps the backend-owned verification flag and
// display name onto the directory row. An empty displayName leaves the
// column untouched.
func (r *ProfileRepo) UpdateVerification(ctx context.Context, uid string, emailVerified bool, displayName string) error {
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx, `
			UPDATE users
			SET email_verified = $2,
			    display_name = COALESCE(NULLIF($3, ''), display_name),
			    updated_at = $4
			WHERE uid = $1`,
			uid, emailVerified, displayName, r.timeProvider.Now().UTC(),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
	return apperrors.MapDBError(err)
}

// UpdateActivity stamps the online flag and activity fields. Zero-value
// times leave the corresponding columns untouched; an empty sessionID
// clears the column only when going offline.
func (r *ProfileRepo) UpdateActivity(ctx context.Context, uid string, online bool, lastLogin, lastActivity time.Time, sessionID string) error {
	set, args := r.buildActivityClause(online, lastLogin, lastActivity, sessionID)
	args = append(args, uid)
	query := "UPDATE users SET " + set + " WHERE uid = $" + strconv.Itoa(len(args))

	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
	return apperrors.MapDBError(err)
}

// buildActivityClause builds the SQL SET clause and args for an activity
// stamp based on which fields were provided.
func (r *ProfileRepo) buildActivityClause(online bool, lastLogin, lastActivity time.Time, sessionID string) (string, []any) {
	var clauses []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	add("is_online", online)
	if !lastLogin.IsZero() {
		add("last_login", lastLogin.UTC())
	}
	if !lastActivity.IsZero() {
		add("last_activity", lastActivity.UTC())
	}
	if sessionID != "" {
		add("session_id", sessionID)
	} else if !online {
		clauses = append(clauses, "session_id = NULL")
	}
	add("updated_at", r.timeProvider.Now().UTC())

	return strings.Join(clauses, ", "), args
}
