package server

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/setplaylist/setplaylist/internal/auth"
	"github.com/setplaylist/setplaylist/internal/models"
)

type contextKey string

const (
	userKey    contextKey = "user"
	sessionKey contextKey = "session"
)

// UserFrom returns the authenticated user stored in the request context, or
// nil for an anonymous request.
func UserFrom(ctx context.Context) *models.User {
	user, _ := ctx.Value(userKey).(*models.User)
	return user
}

// SessionFrom returns the local session stored in the request context, or nil.
func SessionFrom(ctx context.Context) *models.LocalSession {
	session, _ := ctx.Value(sessionKey).(*models.LocalSession)
	return session
}

// RequestLogger logs each request with method, path, status, and duration.
func RequestLogger(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(recorder, r)

			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.status,
				"duration", time.Since(start),
			)
		})
	}
}

// WithSession resolves the session cookie into a user and session on the
// request context. Anonymous requests pass through with neither set; only a
// storage failure stops the request.
func WithSession(sessions *auth.SessionManager, logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, session, err := sessions.Resolve(r)
			if err != nil {
				logger.Error("session resolution failed", "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			ctx := r.Context()
			if user != nil {
				ctx = context.WithValue(ctx, userKey, user)
				ctx = context.WithValue(ctx, sessionKey, session)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
