package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/hrms/internal/persistence"
)

// SessionRepository implements persistence.SessionRepository using SQLite.
type SessionRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewSessionRepository creates a new SQLite session repository.
func NewSessionRepository(pool *ConnectionPool) *SessionRepository {
	return &SessionRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateSession stores a new session for a user.
func (r *SessionRepository) CreateSession(ctx context.Context, session persistence.Session) error {
	if session.ID == "" || session.UserID == "" {
		return persistence.ErrConstraintViolation
	}

	query := `
		INSERT INTO sessions (id, user_id, user_agent, expires_at, created_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.helper.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.UserAgent,
		toMillis(session.ExpiresAt),
		toMillis(session.CreatedAt),
		nullMillis(session.RevokedAt),
	)
	return r.mapper.MapError(err)
}

// GetSession retrieves a session by ID.
func (r *SessionRepository) GetSession(ctx context.Context, id string) (persistence.Session, error) {
	if id == "" {
		return persistence.Session{}, persistence.ErrNotFound
	}

	query := `
		SELECT id, user_id, user_agent, expires_at, created_at, revoked_at
		FROM sessions
		WHERE id = ?
	`
	var (
		session              persistence.Session
		expiresAt, createdAt int64
		revokedAt            sql.NullInt64
	)
	err := r.helper.QueryRow(ctx, query, id).Scan(
		&session.ID,
		&session.UserID,
		&session.UserAgent,
		&expiresAt,
		&createdAt,
		&revokedAt,
	)
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}
	session.ExpiresAt = fromMillis(expiresAt)
	session.CreatedAt = fromMillis(createdAt)
	session.RevokedAt = timePtr(revokedAt)
	return session, nil
}

// RevokeSession marks a session revoked. Revoking an already revoked session keeps the
// original timestamp.
func (r *SessionRepository) RevokeSession(ctx context.Context, id string, revokedAt time.Time) error {
	result, err := r.helper.Exec(ctx,
		`UPDATE sessions SET revoked_at = COALESCE(revoked_at, ?) WHERE id = ?`,
		toMillis(revokedAt), id,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return expectAffected(result)
}

// RevokeUserSessions revokes every live session of a user.
func (r *SessionRepository) RevokeUserSessions(ctx context.Context, userID string, revokedAt time.Time) error {
	_, err := r.helper.Exec(ctx,
		`UPDATE sessions SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`,
		toMillis(revokedAt), userID,
	)
	return r.mapper.MapError(err)
}

// DeleteExpiredSessions removes sessions that expired or were revoked before reference.
func (r *SessionRepository) DeleteExpiredSessions(ctx context.Context, reference time.Time) (int64, error) {
	ref := toMillis(reference)
	result, err := r.helper.Exec(ctx,
		`DELETE FROM sessions WHERE expires_at <= ? OR (revoked_at IS NOT NULL AND revoked_at <= ?)`,
		ref, ref,
	)
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}
