package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"

	domainauth "github.com/brokerhaus/portal-api/internal/domain/auth"
	apperrors "github.com/brokerhaus/portal-api/internal/errors"
	"github.com/brokerhaus/portal-api/internal/data/pgxutil"
)

// SessionRepo persists device sessions in Postgres. Rows are only ever
// soft-deactivated; the history backs audit and the per-user metrics.
type SessionRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewSessionRepo creates a SessionRepo with the system clock.
func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewSessionRepoWithTime creates a SessionRepo with an injected clock.
func NewSessionRepoWithTime(db *sql.DB, tp TimeProvider) *SessionRepo {
	return &SessionRepo{DB: db, timeProvider: tp}
}

// sessionRow mirrors the sessions table for pgx struct scanning.
type sessionRow struct {
	Token        string    `db:"token"`
	UserID       string    `db:"user_id"`
	UserAgent    string    `db:"user_agent"`
	IP           string    `db:"ip"`
	CreatedAt    time.Time `db:"created_at"`
	LastActivity time.Time `db:"last_activity"`
	IsActive     bool      `db:"is_active"`
	ExpiresAt    time.Time `db:"expires_at"`
}

const sessionColumns = `token, user_id, user_agent, ip, created_at, last_activity, is_active, expires_at`

func (row sessionRow) toSession() domainauth.SessionData {
	return domainauth.SessionData{
		Token:        row.Token,
		UserID:       row.UserID,
		Device:       domainauth.DeviceInfo{UserAgent: row.UserAgent, IP: row.IP},
		CreatedAt:    row.CreatedAt,
		LastActivity: row.LastActivity,
		IsActive:     row.IsActive,
		ExpiresAt:    row.ExpiresAt,
	}
}

// Create inserts a new session row.
func (r *SessionRepo) Create(ctx context.Context, sess domainauth.SessionData) error {
	if sess.Token == "" {
		return apperrors.ValidationField("token", "session token is required")
	}
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO sessions (token, user_id, user_agent, ip, created_at, last_activity, is_active, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			sess.Token, sess.UserID, sess.Device.UserAgent, sess.Device.IP,
			sess.CreatedAt.UTC(), sess.LastActivity.UTC(), sess.IsActive, sess.ExpiresAt.UTC(),
		)
		return err
	})
	return apperrors.MapDBError(err)
}

// Get fetches a session by token, active or not.
func (r *SessionRepo) Get(ctx context.Context, token string) (domainauth.SessionData, error) {
	var row sessionRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token = $1`, token)
		if err != nil {
			return err
		}
		defer rows.Close()
		row, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[sessionRow])
		return err
	})
	if err != nil {
		return domainauth.SessionData{}, apperrors.MapDBError(err)
	}
	return row.toSession(), nil
}

// Touch updates last_activity for one session.
func (r *SessionRepo) Touch(ctx context.Context, token string, at time.Time) error {
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx,
			`UPDATE sessions SET last_activity = $2 WHERE token = $1`, token, at.UTC())
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

// TouchAllActive stamps last_activity on every active session of a user
// in one statement.
func (r *SessionRepo) TouchAllActive(ctx context.Context, userID string, at time.Time) error {
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx,
			`UPDATE sessions SET last_activity = $2 WHERE user_id = $1 AND is_active`, userID, at.UTC())
		return err
	})
	return apperrors.MapDBError(err)
}

// Deactivate flips one session inactive. The row stays.
func (r *SessionRepo) Deactivate(ctx context.Context, token string) error {
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx,
			`UPDATE sessions SET is_active = FALSE WHERE token = $1`, token)
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

// DeactivateAllForUser flips every active session of a user inactive and
// returns the flipped tokens.
func (r *SessionRepo) DeactivateAllForUser(ctx context.Context, userID string) ([]string, error) {
	var tokens []string
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx,
			`UPDATE sessions SET is_active = FALSE WHERE user_id = $1 AND is_active RETURNING token`, userID)
		if err != nil {
			return err
		}
		defer rows.Close()
		tokens, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return tokens, nil
}

// ActiveTokensForUser lists the tokens of a user's active sessions.
func (r *SessionRepo) ActiveTokensForUser(ctx context.Context, userID string) ([]string, error) {
	var tokens []string
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx,
			`SELECT token FROM sessions WHERE user_id = $1 AND is_active`, userID)
		if err != nil {
			return err
		}
		defer rows.Close()
		tokens, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return tokens, nil
}

// DeactivateExpired sweeps up to limit sessions past their expiry and
// returns the distinct user ids affected. The reaper uses those ids to
// flip users offline.
func (r *SessionRepo) DeactivateExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	var users []string
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			WITH swept AS (
				UPDATE sessions SET is_active = FALSE
				WHERE token IN (
					SELECT token FROM sessions
					WHERE is_active AND expires_at <= $1
					ORDER BY expires_at
					LIMIT $2
				)
				RETURNING user_id
			)
			SELECT DISTINCT user_id FROM swept`,
			now.UTC(), limit,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		users, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return users, nil
}

// Metrics derives per-user session accounting in a single query.
func (r *SessionRepo) Metrics(ctx context.Context, userID string) (domainauth.SessionMetrics, error) {
	var metrics domainauth.SessionMetrics
	now := r.timeProvider.Now().UTC()
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		row := conn.QueryRow(ctx, `
			SELECT
				COUNT(*) FILTER (WHERE is_active AND expires_at > $2),
				COUNT(*),
				MAX(created_at)
			FROM sessions WHERE user_id = $1`,
			userID, now,
		)
		return row.Scan(&metrics.ActiveSessions, &metrics.TotalHistoricalSessions, &metrics.LastSessionCreated)
	})
	if err != nil {
		return domainauth.SessionMetrics{}, apperrors.MapDBError(err)
	}
	return metrics, nil
}
