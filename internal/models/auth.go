package models

import "time"

// PendingAuth is an in-flight OAuth handshake: a one-time state token bound to
// the local user who started the link flow.
//
// Rows are consumed exactly once by the provider callback and expire after a
// bounded TTL so abandoned handshakes do not accumulate.
type PendingAuth struct {
	State     string
	UserID    string
	Scopes    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the handshake has outlived its TTL.
func (p PendingAuth) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// LocalSession is a server-side session keyed by the opaque cookie value.
//
// ExternalKey points at the ExternalSession created when the provider link
// completed during this browser session, or is empty.
type LocalSession struct {
	ID          string
	UserID      string
	ExternalKey string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the session has outlived its cookie lifetime.
func (s LocalSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// ExternalSession holds the provider token pair obtained by a completed
// handshake, keyed by the handshake's state token for the life of the local
// session. Invalidated on logout via cascade delete.
type ExternalSession struct {
	Key            string
	SessionID      string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time
	CreatedAt      time.Time
}

// Fresh reports whether the access token is still usable, with a safety margin
// so a token is never handed out moments before it lapses.
func (s ExternalSession) Fresh(now time.Time) bool {
	return s.AccessToken != "" && now.Add(30*time.Second).Before(s.TokenExpiresAt)
}
