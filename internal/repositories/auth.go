package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/setplaylist/setplaylist/internal/models"
	"github.com/setplaylist/setplaylist/internal/shared"
)

// PendingAuthRepository stores in-flight OAuth handshakes keyed by their
// one-time state token.
//
// Unlike the entity repositories this is not CRUD: rows are written once,
// consumed at most once, and expire on a TTL.
type PendingAuthRepository struct {
	db *sql.DB
}

// NewPendingAuthRepository creates a new [PendingAuthRepository] with the given database connection
func NewPendingAuthRepository(db *sql.DB) *PendingAuthRepository {
	return &PendingAuthRepository{db: db}
}

// Create inserts a pending authorization. Expired rows are pruned
// opportunistically so abandoned handshakes never accumulate.
func (r *PendingAuthRepository) Create(auth *models.PendingAuth) error {
	if auth.State == "" {
		return fmt.Errorf("%w: state token is required", shared.ErrInvalidInput)
	}
	if auth.UserID == "" {
		return fmt.Errorf("%w: user id is required", shared.ErrInvalidInput)
	}

	// best effort; a failed prune must not block the handshake
	r.PruneExpired(time.Now())

	query := `
		INSERT INTO pending_auths (state, user_id, scopes, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query, auth.State, auth.UserID, auth.Scopes, auth.CreatedAt, auth.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert pending auth: %w", err)
	}

	return nil
}

// Consume atomically removes and returns the pending authorization for state.
//
// A single DELETE..RETURNING is the compare-and-delete primitive: two
// concurrent callbacks with the same state cannot both observe the row.
// Expired, already-consumed, forged, and never-issued states all fail with
// [shared.ErrUnknownState]; callers must not be able to tell them apart.
func (r *PendingAuthRepository) Consume(state string) (*models.PendingAuth, error) {
	query := `
		DELETE FROM pending_auths
		WHERE state = ? AND expires_at > ?
		RETURNING state, user_id, scopes, created_at, expires_at
	`

	var auth models.PendingAuth
	err := r.db.QueryRow(query, state, time.Now()).Scan(
		&auth.State, &auth.UserID, &auth.Scopes, &auth.CreatedAt, &auth.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, shared.ErrUnknownState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume pending auth: %w", err)
	}

	return &auth, nil
}

// PruneExpired deletes handshakes whose TTL has lapsed.
func (r *PendingAuthRepository) PruneExpired(now time.Time) error {
	_, err := r.db.Exec("DELETE FROM pending_auths WHERE expires_at <= ?", now)
	if err != nil {
		return fmt.Errorf("failed to prune pending auths: %w", err)
	}
	return nil
}

// Count returns the number of live pending handshakes.
func (r *PendingAuthRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM pending_auths").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending auths: %w", err)
	}
	return n, nil
}

// SessionRepository stores local browser sessions and the provider token pairs
// linked to them.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new [SessionRepository] with the given database connection
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateLocal inserts a new local session row.
func (r *SessionRepository) CreateLocal(session *models.LocalSession) error {
	if session.ID == "" || session.UserID == "" {
		return fmt.Errorf("%w: session id and user id are required", shared.ErrInvalidInput)
	}

	query := `
		INSERT INTO local_sessions (id, user_id, external_key, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query, session.ID, session.UserID, nullableString(session.ExternalKey), session.CreatedAt, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return nil
}

// GetLocal retrieves a live session by its opaque ID.
//
// Returns (nil, nil) for a missing or expired session: anonymity is a valid
// state, not a fault. Expired rows are removed on sight.
func (r *SessionRepository) GetLocal(id string) (*models.LocalSession, error) {
	query := `
		SELECT id, user_id, external_key, created_at, expires_at
		FROM local_sessions
		WHERE id = ?
	`

	var (
		session     models.LocalSession
		externalKey sql.NullString
	)

	err := r.db.QueryRow(query, id).Scan(&session.ID, &session.UserID, &externalKey, &session.CreatedAt, &session.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	if session.Expired(time.Now()) {
		if err := r.DeleteLocal(session.ID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if externalKey.Valid {
		session.ExternalKey = externalKey.String
	}

	return &session, nil
}

// SetExternalKey records the external session key on a local session.
func (r *SessionRepository) SetExternalKey(sessionID, key string) error {
	result, err := r.db.Exec("UPDATE local_sessions SET external_key = ? WHERE id = ?", nullableString(key), sessionID)
	if err != nil {
		return fmt.Errorf("failed to set external key: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session not found: %s", sessionID)
	}

	return nil
}

// DeleteLocal removes a session. The linked external session row, if any,
// cascades away with it.
func (r *SessionRepository) DeleteLocal(id string) error {
	if _, err := r.db.Exec("DELETE FROM local_sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// PruneExpired deletes sessions past their cookie lifetime.
func (r *SessionRepository) PruneExpired(now time.Time) error {
	_, err := r.db.Exec("DELETE FROM local_sessions WHERE expires_at <= ?", now)
	if err != nil {
		return fmt.Errorf("failed to prune sessions: %w", err)
	}
	return nil
}

// CreateExternal inserts the provider token pair for a completed handshake.
func (r *SessionRepository) CreateExternal(ext *models.ExternalSession) error {
	if ext.Key == "" || ext.SessionID == "" {
		return fmt.Errorf("%w: key and session id are required", shared.ErrInvalidInput)
	}

	query := `
		INSERT INTO external_sessions (key, session_id, access_token, refresh_token, token_expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query, ext.Key, ext.SessionID, ext.AccessToken, ext.RefreshToken, ext.TokenExpiresAt, ext.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert external session: %w", err)
	}

	return nil
}

// GetExternal retrieves an external session by its key.
func (r *SessionRepository) GetExternal(key string) (*models.ExternalSession, error) {
	query := externalSelect + " WHERE key = ?"
	return r.scanExternal(r.db.QueryRow(query, key))
}

// GetExternalBySession retrieves the external session linked to a local session.
//
// Returns (nil, nil) when the session has no provider link.
func (r *SessionRepository) GetExternalBySession(sessionID string) (*models.ExternalSession, error) {
	query := externalSelect + " WHERE session_id = ?"
	return r.scanExternal(r.db.QueryRow(query, sessionID))
}

// UpdateExternalTokens overwrites the token pair after a refresh. The whole
// pair is replaced in one statement.
func (r *SessionRepository) UpdateExternalTokens(key, accessToken, refreshToken string, expiresAt time.Time) error {
	query := `
		UPDATE external_sessions
		SET access_token = ?, refresh_token = ?, token_expires_at = ?
		WHERE key = ?
	`

	result, err := r.db.Exec(query, accessToken, refreshToken, expiresAt, key)
	if err != nil {
		return fmt.Errorf("failed to update external session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("external session not found: %s", key)
	}

	return nil
}

const externalSelect = `
	SELECT key, session_id, access_token, refresh_token, token_expires_at, created_at
	FROM external_sessions`

func (r *SessionRepository) scanExternal(row *sql.Row) (*models.ExternalSession, error) {
	var ext models.ExternalSession
	err := row.Scan(&ext.Key, &ext.SessionID, &ext.AccessToken, &ext.RefreshToken, &ext.TokenExpiresAt, &ext.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query external session: %w", err)
	}
	return &ext, nil
}
