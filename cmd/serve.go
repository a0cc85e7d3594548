package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/setplaylist/setplaylist/internal/auth"
	"github.com/setplaylist/setplaylist/internal/repositories"
	"github.com/setplaylist/setplaylist/internal/server"
	"github.com/setplaylist/setplaylist/internal/services"
	"github.com/setplaylist/setplaylist/internal/shared"
	"github.com/setplaylist/setplaylist/internal/tasks"
	"github.com/setplaylist/setplaylist/internal/web"
	"github.com/urfave/cli/v3"
)

// pruneInterval is how often expired sessions and pending authorizations are
// swept from storage.
const pruneInterval = 10 * time.Minute

// Serve wires the full application together and runs the HTTP server until
// interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd.String("config"))
	if port := cmd.Int("port"); port != 0 {
		config.Server.Port = int(port)
	}

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	spotify, err := services.NewSpotifyService(map[string]string{
		"client_id":     config.Credentials.Spotify.ClientID,
		"client_secret": config.Credentials.Spotify.ClientSecret,
		"redirect_uri":  config.Credentials.Spotify.RedirectURI,
	})
	if err != nil {
		return fmt.Errorf("failed to create spotify service: %w", err)
	}

	setlists, err := services.NewSetlistService(config.Credentials.SetlistFM.APIKey, config.Credentials.SetlistFM.BaseURL)
	if err != nil {
		return fmt.Errorf("failed to create setlist.fm service: %w", err)
	}

	events, err := services.NewBandsintownService(config.Credentials.Bandsintown.AppID, config.Credentials.Bandsintown.BaseURL)
	if err != nil {
		return fmt.Errorf("failed to create bandsintown service: %w", err)
	}

	users := repositories.NewUserRepository(db)
	pending := repositories.NewPendingAuthRepository(db)
	sessions := repositories.NewSessionRepository(db)
	playlists := repositories.NewPlaylistRepository(db)

	creds := auth.NewCredentialStore(users, r.logger)
	sessionMgr := auth.NewSessionManager(sessions, users, config.Server.SessionTTL(), config.Server.SecureCookies)
	broker := auth.NewBroker(spotify.OAuthConfig(), pending, sessions, creds, config.Server.AuthTTL(), r.logger)
	refresh := auth.NewRefreshCoordinator(spotify.OAuthConfig(), creds, sessions, r.logger)
	engine := tasks.NewSetlistEngine(spotify, playlists, r.logger)

	renderer, err := web.NewRenderer()
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	app := server.NewApp(server.AppConfig{
		Renderer:  renderer,
		Creds:     creds,
		Sessions:  sessionMgr,
		Broker:    broker,
		Refresh:   refresh,
		Pending:   pending,
		Playlists: playlists,
		Catalog:   spotify,
		Setlists:  setlists,
		Events:    events,
		Builder:   engine,
		Logger:    r.logger,
	})

	router := server.NewBasicRouter()
	router.Use(server.RequestLogger(r.logger), server.WithSession(sessionMgr, r.logger))
	app.Mount(router)

	srv := &http.Server{
		Addr:              config.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go r.prune(ctx, pending, sessions)

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if cmd.Bool("open") {
		url := "http://" + config.Server.Addr()
		if err := shared.OpenBrowser(url); err != nil {
			r.logger.Warn("failed to open browser", "url", url, "error", err)
		}
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	r.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// prune periodically removes expired pending authorizations and sessions so
// abandoned handshakes and stale logins cannot accumulate.
func (r *Runner) prune(ctx context.Context, pending *repositories.PendingAuthRepository, sessions *repositories.SessionRepository) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			if err := pending.PruneExpired(now); err != nil {
				r.logger.Warn("failed to prune pending authorizations", "error", err)
			}
			if err := sessions.PruneExpired(now); err != nil {
				r.logger.Warn("failed to prune sessions", "error", err)
			}
		}
	}
}
