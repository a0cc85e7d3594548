package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")

	// Account errors
	ErrDuplicateUsername = fmt.Errorf("username already taken")
	ErrUserNotFound      = fmt.Errorf("user not found")
	ErrTooManyAttempts   = fmt.Errorf("too many attempts")

	// Authorization linking errors
	ErrUnknownState   = fmt.Errorf("unknown authorization state")
	ErrExchangeFailed = fmt.Errorf("authorization code exchange failed")
	ErrNotLinked      = fmt.Errorf("account not linked to provider")

	// Token errors
	ErrTokenRevoked  = fmt.Errorf("provider refresh token revoked")
	ErrRefreshFailed = fmt.Errorf("token refresh failed")
	ErrTimeout       = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrArtistNotFound     = fmt.Errorf("artist not found")
	ErrSetlistNotFound    = fmt.Errorf("setlist not found")
	ErrPlaylistNotFound   = fmt.Errorf("playlist not found")
	ErrTrackNotFound      = fmt.Errorf("track not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
)
