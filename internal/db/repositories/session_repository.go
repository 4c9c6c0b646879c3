// session_repository.go implements SessionRepository for opaque bearer-token
// sessions. Sessions are never physically deleted; logout and bulk revocation set
// revoked_at, keeping the row for after-the-fact investigation.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/oneira/oneira/internal/db/models"
)

// SessionRepository handles session database operations
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateSession persists a new session. Token, expiry, and client metadata are set by
// the caller; ID and timestamps are filled in here.
func (r *SessionRepository) CreateSession(ctx context.Context, session *models.Session) error {
	session.ID = uuid.New().String()
	session.CreatedAt = time.Now()
	session.LastSeenAt = session.CreatedAt

	query := `
		INSERT INTO sessions (id, user_id, token, created_at, expires_at, last_seen_at, user_agent, ip)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.UserID,
		session.Token,
		session.CreatedAt,
		session.ExpiresAt,
		session.LastSeenAt,
		session.UserAgent,
		session.IP,
	)

	return err
}

// GetSessionByToken retrieves a session by its bearer token. Returns nil when no
// session matches; expiry and revocation checks are the caller's job so that all
// invalid-credential paths can collapse into one uniform response.
func (r *SessionRepository) GetSessionByToken(ctx context.Context, token string) (*models.Session, error) {
	query := `
		SELECT id, user_id, token, created_at, expires_at, revoked_at, last_seen_at, user_agent, ip
		FROM sessions
		WHERE token = $1
	`

	session := &models.Session{}
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.RevokedAt,
		&session.LastSeenAt,
		&session.UserAgent,
		&session.IP,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return session, nil
}

// GetSessionByID retrieves a session by ID
func (r *SessionRepository) GetSessionByID(ctx context.Context, sessionID string) (*models.Session, error) {
	query := `
		SELECT id, user_id, token, created_at, expires_at, revoked_at, last_seen_at, user_agent, ip
		FROM sessions
		WHERE id = $1
	`

	session := &models.Session{}
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.RevokedAt,
		&session.LastSeenAt,
		&session.UserAgent,
		&session.IP,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return session, nil
}

// TouchLastSeen updates the session's last_seen_at. Best-effort: callers fire this
// asynchronously and ignore failures.
func (r *SessionRepository) TouchLastSeen(ctx context.Context, sessionID string) error {
	query := `UPDATE sessions SET last_seen_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, sessionID, time.Now())
	return err
}

// RevokeSession sets revoked_at if it isn't already set. Idempotent.
func (r *SessionRepository) RevokeSession(ctx context.Context, sessionID string) error {
	query := `
		UPDATE sessions
		SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, sessionID, time.Now())
	return err
}

// RevokeAllUserSessions revokes every live session of a user. When exceptSessionID is
// non-nil that session is spared, so a PIN change can keep the current login alive.
func (r *SessionRepository) RevokeAllUserSessions(ctx context.Context, userID string, exceptSessionID *string) error {
	if exceptSessionID != nil {
		query := `
			UPDATE sessions
			SET revoked_at = $2
			WHERE user_id = $1 AND revoked_at IS NULL AND id != $3
		`
		_, err := r.db.ExecContext(ctx, query, userID, time.Now(), *exceptSessionID)
		return err
	}

	query := `
		UPDATE sessions
		SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, userID, time.Now())
	return err
}

// ListSessionsByUser retrieves all sessions of a user, newest first
func (r *SessionRepository) ListSessionsByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	query := `
		SELECT id, user_id, token, created_at, expires_at, revoked_at, last_seen_at, user_agent, ip
		FROM sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		session := &models.Session{}
		err := rows.Scan(
			&session.ID,
			&session.UserID,
			&session.Token,
			&session.CreatedAt,
			&session.ExpiresAt,
			&session.RevokedAt,
			&session.LastSeenAt,
			&session.UserAgent,
			&session.IP,
		)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}
