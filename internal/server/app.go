package server

import (
	"context"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/setplaylist/setplaylist/internal/auth"
	"github.com/setplaylist/setplaylist/internal/repositories"
	"github.com/setplaylist/setplaylist/internal/services"
	"github.com/setplaylist/setplaylist/internal/shared"
	"github.com/setplaylist/setplaylist/internal/tasks"
	"github.com/setplaylist/setplaylist/internal/web"
)

// Catalog is the slice of the Spotify client the page handlers consume.
type Catalog interface {
	SearchArtists(ctx context.Context, query string) ([]services.SpotifyArtist, error)
	Artist(ctx context.Context, artistID string) (*services.SpotifyArtist, error)
	ArtistTopTracks(ctx context.Context, artistID string) ([]services.SpotifyTrack, error)
}

// SetlistSource provides setlist lookups for an artist.
type SetlistSource interface {
	SearchArtist(ctx context.Context, name string) (*services.FMArtist, error)
	ArtistSetlists(ctx context.Context, mbid string) ([]services.FMSetlist, error)
	Setlist(ctx context.Context, setlistID string) (*services.FMSetlist, error)
}

// EventSource provides upcoming show lookups for an artist.
type EventSource interface {
	UpcomingEvents(ctx context.Context, artistName string) ([]services.BitEvent, error)
}

// PlaylistBuilder runs the playlist generation pipeline.
type PlaylistBuilder interface {
	Build(ctx context.Context, progress chan<- tasks.ProgressUpdate, params tasks.BuildParams) (*tasks.BuildResult, error)
	Hype(ctx context.Context, progress chan<- tasks.ProgressUpdate, params tasks.HypeParams) (*tasks.BuildResult, error)
}

// App owns every page handler and the collaborators they share.
type App struct {
	renderer  *web.Renderer
	creds     *auth.CredentialStore
	sessions  *auth.SessionManager
	broker    *auth.Broker
	refresh   *auth.RefreshCoordinator
	pending   *repositories.PendingAuthRepository
	playlists *repositories.PlaylistRepository
	catalog   Catalog
	setlists  SetlistSource
	events    EventSource
	builder   PlaylistBuilder
	logger    *log.Logger
}

// AppConfig collects the App's collaborators.
type AppConfig struct {
	Renderer  *web.Renderer
	Creds     *auth.CredentialStore
	Sessions  *auth.SessionManager
	Broker    *auth.Broker
	Refresh   *auth.RefreshCoordinator
	Pending   *repositories.PendingAuthRepository
	Playlists *repositories.PlaylistRepository
	Catalog   Catalog
	Setlists  SetlistSource
	Events    EventSource
	Builder   PlaylistBuilder
	Logger    *log.Logger
}

// NewApp creates the application handler set.
func NewApp(cfg AppConfig) *App {
	logger := cfg.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &App{
		renderer:  cfg.Renderer,
		creds:     cfg.Creds,
		sessions:  cfg.Sessions,
		broker:    cfg.Broker,
		refresh:   cfg.Refresh,
		pending:   cfg.Pending,
		playlists: cfg.Playlists,
		catalog:   cfg.Catalog,
		setlists:  cfg.Setlists,
		events:    cfg.Events,
		builder:   cfg.Builder,
		logger:    logger,
	}
}

// Mount registers every route on the router.
func (a *App) Mount(r Router) {
	r.Handle(http.MethodGet, "/{$}", http.HandlerFunc(a.Landing))

	r.Handle(http.MethodGet, "/register", http.HandlerFunc(a.RegisterForm))
	r.Handle(http.MethodPost, "/register", http.HandlerFunc(a.Register))
	r.Handle(http.MethodGet, "/register/link", a.requireUser(a.BeginLink))
	r.Handle(http.MethodGet, "/callback", http.HandlerFunc(a.Callback))

	r.Handle(http.MethodGet, "/login", http.HandlerFunc(a.LoginForm))
	r.Handle(http.MethodPost, "/login", http.HandlerFunc(a.Login))
	r.Handle(http.MethodPost, "/logout", http.HandlerFunc(a.Logout))

	r.Handle(http.MethodGet, "/forgot", http.HandlerFunc(a.ForgotForm))
	r.Handle(http.MethodPost, "/forgot", http.HandlerFunc(a.Forgot))
	r.Handle(http.MethodGet, "/forgot/{id}", http.HandlerFunc(a.ForgotQuestion))
	r.Handle(http.MethodPost, "/forgot/{id}", http.HandlerFunc(a.ForgotAnswer))
	r.Handle(http.MethodPost, "/forgot/{id}/new", http.HandlerFunc(a.ForgotReset))

	r.Handle(http.MethodGet, "/home", a.requireUser(a.Home))
	r.Handle(http.MethodGet, "/user/{id}/edit", a.requireUser(a.EditForm))
	r.Handle(http.MethodPost, "/user/{id}/edit", a.requireUser(a.Edit))

	r.Handle(http.MethodGet, "/band/search", a.requireUser(a.BandSearch))
	r.Handle(http.MethodGet, "/band/{id}", a.requireUser(a.Band))

	r.Handle(http.MethodGet, "/playlist/{bandID}/hype", a.requireUser(a.HypePreview))
	r.Handle(http.MethodPost, "/playlist/{bandID}/hype", a.requireUser(a.HypeBuild))
	r.Handle(http.MethodGet, "/playlist/{bandID}/{setlistID}", a.requireUser(a.SetlistPreview))
	r.Handle(http.MethodPost, "/playlist/{bandID}/{setlistID}", a.requireUser(a.SetlistBuild))
	r.Handle(http.MethodGet, "/playlists/{id}", a.requireUser(a.SavedPlaylist))
}

// requireUser guards a handler behind an authenticated session, redirecting
// anonymous requests to the login page.
func (a *App) requireUser(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFrom(r.Context()) == nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next(w, r)
	})
}

// page renders a template, logging and degrading to a plain 500 if rendering
// itself fails.
func (a *App) page(w http.ResponseWriter, status int, name string, data web.PageData) {
	if err := a.renderer.Render(w, status, name, data); err != nil {
		a.logger.Error("render failed", "template", name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// fail renders the shared error page.
func (a *App) fail(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		a.logger.Error("request failed", "status", status, "error", err)
	}
	if renderErr := a.renderer.RenderError(w, status, message); renderErr != nil {
		http.Error(w, message, status)
	}
}

// Landing renders the public landing page.
func (a *App) Landing(w http.ResponseWriter, r *http.Request) {
	a.page(w, http.StatusOK, "landing.html", web.PageData{
		User: UserFrom(r.Context()),
	})
}

// authedPage fills the shared envelope for a signed-in page.
func authedPage(r *http.Request, title string, data any) web.PageData {
	return web.PageData{
		Title: title,
		User:  UserFrom(r.Context()),
		Data:  data,
	}
}
