package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/charmbracelet/log"
	"github.com/setplaylist/setplaylist/internal/models"
	"github.com/setplaylist/setplaylist/internal/repositories"
	"github.com/setplaylist/setplaylist/internal/shared"
	"golang.org/x/oauth2"
)

// RefreshCoordinator exchanges a user's stored long-lived refresh token for
// short-lived access tokens.
//
// Runs at the start of every login and before any outbound call made on the
// user's behalf. A revoked refresh token is a sticky, user-visible condition
// ([shared.ErrTokenRevoked]): retrying cannot succeed until the account is
// re-linked, so callers must surface a re-authorize prompt rather than a
// generic failure.
type RefreshCoordinator struct {
	oauth       *oauth2.Config
	creds       *CredentialStore
	sessions    *repositories.SessionRepository
	logger      *log.Logger
	httpTimeout time.Duration
}

// NewRefreshCoordinator creates a RefreshCoordinator for the given provider config.
func NewRefreshCoordinator(oauthCfg *oauth2.Config, creds *CredentialStore, sessions *repositories.SessionRepository, logger *log.Logger) *RefreshCoordinator {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &RefreshCoordinator{
		oauth:       oauthCfg,
		creds:       creds,
		sessions:    sessions,
		logger:      logger,
		httpTimeout: providerHTTPTimeout,
	}
}

// EnsureFreshAccessToken returns a usable access token for the user.
//
// The session's external session is consulted first; a still-fresh access
// token is reused as is. Otherwise the stored refresh token is exchanged at
// the provider's token endpoint. A timeout is retried once transparently,
// then surfaces as [shared.ErrTimeout]; provider revocation surfaces as
// [shared.ErrTokenRevoked].
func (c *RefreshCoordinator) EnsureFreshAccessToken(ctx context.Context, user *models.User, session *models.LocalSession) (string, error) {
	now := time.Now()

	var ext *models.ExternalSession
	if session != nil && session.ExternalKey != "" {
		var err error
		ext, err = c.sessions.GetExternal(session.ExternalKey)
		if err != nil {
			return "", err
		}
		if ext != nil && ext.Fresh(now) {
			return ext.AccessToken, nil
		}
	}

	if user.RefreshToken() == "" {
		return "", shared.ErrNotLinked
	}

	token, err := c.refresh(ctx, user.RefreshToken())
	if err != nil {
		return "", err
	}

	// Provider may rotate the refresh token; overwrite whole when it does.
	if token.RefreshToken != "" && token.RefreshToken != user.RefreshToken() {
		if err := c.creds.SetRefreshToken(user, token.RefreshToken); err != nil {
			return "", err
		}
	}

	if err := c.storeExternal(user, session, ext, token); err != nil {
		return "", err
	}

	return token.AccessToken, nil
}

// refresh performs the refresh-token grant, retrying a timeout once.
func (c *RefreshCoordinator) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	token, err := c.refreshOnce(ctx, refreshToken)
	if err != nil && errors.Is(err, shared.ErrTimeout) {
		c.logger.Warn("token refresh timed out, retrying once")
		token, err = c.refreshOnce(ctx, refreshToken)
	}
	return token, err
}

func (c *RefreshCoordinator) refreshOnce(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := c.oauth.TokenSource(withHTTPTimeout(ctx, c.httpTimeout), &oauth2.Token{RefreshToken: refreshToken})

	token, err := src.Token()
	if err != nil {
		if isRevoked(err) {
			return nil, shared.ErrTokenRevoked
		}
		if isTimeout(err) {
			return nil, shared.ErrTimeout
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	return token, nil
}

// storeExternal records the fresh token pair against the local session so
// subsequent requests in the same browser session skip the provider round
// trip.
func (c *RefreshCoordinator) storeExternal(user *models.User, session *models.LocalSession, ext *models.ExternalSession, token *oauth2.Token) error {
	if session == nil {
		return nil
	}

	refreshToken := token.RefreshToken
	if refreshToken == "" {
		refreshToken = user.RefreshToken()
	}

	if ext != nil {
		return c.sessions.UpdateExternalTokens(ext.Key, token.AccessToken, refreshToken, token.Expiry)
	}

	created := &models.ExternalSession{
		Key:            shared.GenerateState(),
		SessionID:      session.ID,
		AccessToken:    token.AccessToken,
		RefreshToken:   refreshToken,
		TokenExpiresAt: token.Expiry,
		CreatedAt:      time.Now(),
	}

	if err := c.sessions.CreateExternal(created); err != nil {
		return err
	}
	if err := c.sessions.SetExternalKey(session.ID, created.Key); err != nil {
		return err
	}

	session.ExternalKey = created.Key
	return nil
}

// isRevoked reports whether the provider rejected the refresh token itself.
// Per RFC 6749 a revoked or invalid grant comes back as invalid_grant.
func isRevoked(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return false
	}
	return retrieveErr.ErrorCode == "invalid_grant"
}

// isTimeout reports whether err is a deadline or network timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
