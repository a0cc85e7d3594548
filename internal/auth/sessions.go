package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/setplaylist/setplaylist/internal/models"
	"github.com/setplaylist/setplaylist/internal/repositories"
	"github.com/setplaylist/setplaylist/internal/shared"
)

// CookieName is the canonical session cookie name. The cookie carries only an
// opaque session identifier, never a user id or provider token.
const CookieName = "setplaylist_session"

// SessionManager maps inbound requests to authenticated users via a
// server-side session keyed by an opaque cookie.
type SessionManager struct {
	sessions *repositories.SessionRepository
	users    *repositories.UserRepository
	ttl      time.Duration
	secure   bool
}

// NewSessionManager creates a SessionManager issuing sessions with the given
// lifetime. secure controls the cookie Secure flag (off for local dev over
// plain HTTP).
func NewSessionManager(sessions *repositories.SessionRepository, users *repositories.UserRepository, ttl time.Duration, secure bool) *SessionManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionManager{
		sessions: sessions,
		users:    users,
		ttl:      ttl,
		secure:   secure,
	}
}

// Issue creates a new session for the user and sets the session cookie.
func (m *SessionManager) Issue(w http.ResponseWriter, user *models.User) (*models.LocalSession, error) {
	now := time.Now()
	session := &models.LocalSession{
		ID:        shared.GenerateState(),
		UserID:    user.ID(),
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	if err := m.sessions.CreateLocal(session); err != nil {
		return nil, err
	}

	m.writeCookie(w, session)
	return session, nil
}

// Resolve returns the authenticated user and session for a request.
//
// Returns (nil, nil, nil) for an anonymous request: no cookie, an expired or
// unknown session, or a session whose user no longer resolves. Absence of
// identity is a valid state, not an error; only storage failures surface.
func (m *SessionManager) Resolve(r *http.Request) (*models.User, *models.LocalSession, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil, nil
	}

	session, err := m.sessions.GetLocal(cookie.Value)
	if err != nil {
		return nil, nil, err
	}
	if session == nil {
		return nil, nil, nil
	}

	user, err := m.users.Get(session.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrUserNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	return user, session, nil
}

// Destroy removes the request's session, its linked external session, and
// clears the cookie. A no-op for anonymous requests.
func (m *SessionManager) Destroy(w http.ResponseWriter, r *http.Request) error {
	cookie, err := r.Cookie(CookieName)
	if err == nil && cookie.Value != "" {
		if err := m.sessions.DeleteLocal(cookie.Value); err != nil {
			return err
		}
	}

	m.clearCookie(w)
	return nil
}

func (m *SessionManager) writeCookie(w http.ResponseWriter, session *models.LocalSession) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *SessionManager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
