package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/setplaylist/setplaylist/internal/models"
	"github.com/setplaylist/setplaylist/internal/repositories"
	"github.com/setplaylist/setplaylist/internal/shared"
	"golang.org/x/oauth2"
)

// Broker runs the two-phase OAuth authorization code handshake with the
// provider.
//
// Phase 1 (BeginLink) issues an authorization URL bound to a one-time state
// token. Phase 2 (CompleteLink) consumes that state exactly once and trades
// the returned code for a token pair. The state token correlates the phases
// and nothing else: it never grants identity, so both phases require an
// already-authenticated local user.
type Broker struct {
	oauth    *oauth2.Config
	pending  *repositories.PendingAuthRepository
	sessions *repositories.SessionRepository
	creds    *CredentialStore
	ttl      time.Duration
	logger   *log.Logger
}

// NewBroker creates a Broker for the given provider config. ttl bounds how
// long an unconsumed handshake stays redeemable.
func NewBroker(oauthCfg *oauth2.Config, pending *repositories.PendingAuthRepository, sessions *repositories.SessionRepository, creds *CredentialStore, ttl time.Duration, logger *log.Logger) *Broker {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Broker{
		oauth:    oauthCfg,
		pending:  pending,
		sessions: sessions,
		creds:    creds,
		ttl:      ttl,
		logger:   logger,
	}
}

// BeginLink starts the handshake for an authenticated user and returns the
// provider authorization URL to redirect the browser to, plus the state token
// bound to it.
func (b *Broker) BeginLink(ctx context.Context, user *models.User) (string, string, error) {
	if user == nil || user.ID() == "" {
		return "", "", fmt.Errorf("%w: link flow requires an authenticated user", shared.ErrInvalidInput)
	}

	now := time.Now()
	state := shared.GenerateState()

	err := b.pending.Create(&models.PendingAuth{
		State:     state,
		UserID:    user.ID(),
		Scopes:    strings.Join(b.oauth.Scopes, " "),
		CreatedAt: now,
		ExpiresAt: now.Add(b.ttl),
	})
	if err != nil {
		return "", "", err
	}

	url := b.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
	b.logger.Info("link flow started", "username", user.Username())
	return url, state, nil
}

// CompleteLink finishes the handshake when the provider redirects back.
//
// The pending authorization for state is consumed atomically. Any miss
// (expired, already consumed, forged, never issued, or bound to a different
// user than the current session) fails with [shared.ErrUnknownState], and
// the sub-cases are deliberately indistinguishable. On success the refresh
// token is persisted on the user and an external session is established for
// the caller's local session.
func (b *Broker) CompleteLink(ctx context.Context, session *models.LocalSession, code, state string) (*models.ExternalSession, error) {
	if session == nil {
		return nil, fmt.Errorf("%w: link flow requires an authenticated session", shared.ErrUnknownState)
	}

	pending, err := b.pending.Consume(state)
	if err != nil {
		return nil, err
	}

	if pending.UserID != session.UserID {
		return nil, shared.ErrUnknownState
	}

	token, err := b.oauth.Exchange(withHTTPTimeout(ctx, providerHTTPTimeout), code)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: token endpoint timed out: %v", shared.ErrExchangeFailed, err)
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrExchangeFailed, err)
	}

	user, err := b.creds.Get(pending.UserID)
	if err != nil {
		return nil, err
	}

	if err := b.creds.SetRefreshToken(user, token.RefreshToken); err != nil {
		return nil, err
	}

	ext := &models.ExternalSession{
		Key:            state,
		SessionID:      session.ID,
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		TokenExpiresAt: token.Expiry,
		CreatedAt:      time.Now(),
	}

	if err := b.sessions.CreateExternal(ext); err != nil {
		return nil, err
	}
	if err := b.sessions.SetExternalKey(session.ID, ext.Key); err != nil {
		return nil, err
	}

	b.logger.Info("link flow completed", "username", user.Username())
	return ext, nil
}

// providerHTTPTimeout bounds each token-endpoint round trip.
const providerHTTPTimeout = 10 * time.Second

// withHTTPTimeout supplies oauth2 with an HTTP client bounded by a finite
// timeout; a hung provider must fail the request, not the process.
func withHTTPTimeout(ctx context.Context, timeout time.Duration) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: timeout})
}
