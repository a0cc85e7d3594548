package server

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/setplaylist/setplaylist/internal/auth"
	"github.com/setplaylist/setplaylist/internal/models"
	"github.com/setplaylist/setplaylist/internal/repositories"
	"github.com/setplaylist/setplaylist/internal/services"
	"github.com/setplaylist/setplaylist/internal/shared"
	"github.com/setplaylist/setplaylist/internal/tasks"
	tu "github.com/setplaylist/setplaylist/internal/testing"
	"github.com/setplaylist/setplaylist/internal/web"
	"golang.org/x/oauth2"
)

// serverEnv runs the full handler stack against a real database, a stub
// provider token endpoint, and stub catalog/setlist/event/builder providers.
type serverEnv struct {
	router    *BasicRouter
	creds     *auth.CredentialStore
	pending   *repositories.PendingAuthRepository
	playlists *repositories.PlaylistRepository

	catalog  *stubCatalog
	setlists *stubSetlists
	events   *stubEvents
	builder  *stubBuilder
}

func newServerEnv(t *testing.T) *serverEnv {
	t.Helper()

	db := tu.NewTestDB(t)
	users := repositories.NewUserRepository(db)
	pending := repositories.NewPendingAuthRepository(db)
	sessionsRepo := repositories.NewSessionRepository(db)
	playlists := repositories.NewPlaylistRepository(db)

	creds := auth.NewCredentialStore(users, nil)
	sessionMgr := auth.NewSessionManager(sessionsRepo, users, time.Hour, false)

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"access-1","refresh_token":"refresh-1","token_type":"Bearer","expires_in":3600}`)
	}))
	t.Cleanup(tokenSrv.Close)

	oauthCfg := &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/callback",
		Scopes:       []string{"playlist-modify-private"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  tokenSrv.URL + "/authorize",
			TokenURL: tokenSrv.URL + "/token",
		},
	}

	renderer, err := web.NewRenderer()
	if err != nil {
		t.Fatalf("failed to create renderer: %v", err)
	}

	env := &serverEnv{
		creds:     creds,
		pending:   pending,
		playlists: playlists,
		catalog:   &stubCatalog{},
		setlists:  &stubSetlists{},
		events:    &stubEvents{},
		builder:   &stubBuilder{},
	}

	logger := shared.NewLogger(io.Discard)
	app := NewApp(AppConfig{
		Renderer:  renderer,
		Creds:     creds,
		Sessions:  sessionMgr,
		Broker:    auth.NewBroker(oauthCfg, pending, sessionsRepo, creds, 15*time.Minute, logger),
		Refresh:   auth.NewRefreshCoordinator(oauthCfg, creds, sessionsRepo, logger),
		Pending:   pending,
		Playlists: playlists,
		Catalog:   env.catalog,
		Setlists:  env.setlists,
		Events:    env.events,
		Builder:   env.builder,
		Logger:    logger,
	})

	router := NewBasicRouter()
	router.Use(WithSession(sessionMgr, logger))
	app.Mount(router)

	env.router = router
	return env
}

// do performs a request against the router. A nil form sends no body.
func (e *serverEnv) do(method, target string, cookie *http.Cookie, form url.Values) *httptest.ResponseRecorder {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	r := httptest.NewRequest(method, target, body)
	if form != nil {
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if cookie != nil {
		r.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, r)
	return rec
}

func findSessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()

	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName && c.Value != "" {
			return c
		}
	}
	t.Fatal("expected a session cookie")
	return nil
}

func registerForm(username string) url.Values {
	return url.Values{
		"username":          {username},
		"password":          {"hunter2"},
		"email":             {username + "@example.com"},
		"recovery_question": {"First concert?"},
		"recovery_answer":   {"The Strokes"},
	}
}

// signUp registers an account and returns the session cookie plus the state
// token embedded in the provider redirect.
func (e *serverEnv) signUp(t *testing.T, username string) (*http.Cookie, string) {
	t.Helper()

	rec := e.do(http.MethodPost, "/register", nil, registerForm(username))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected a redirect to the provider, got %d", rec.Code)
	}

	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("failed to parse redirect: %v", err)
	}

	return findSessionCookie(t, rec), loc.Query().Get("state")
}

// linkAccount completes the provider handshake for a signed-up user.
func (e *serverEnv) linkAccount(t *testing.T, cookie *http.Cookie, state string) {
	t.Helper()

	rec := e.do(http.MethodGet, "/callback?code=auth-code&state="+url.QueryEscape(state), cookie, nil)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/home" {
		t.Fatalf("expected the callback to land on /home, got %d to %q", rec.Code, rec.Header().Get("Location"))
	}
}

// seedPlaylist stores a built playlist for the user.
func (e *serverEnv) seedPlaylist(t *testing.T, userID string) *models.Playlist {
	t.Helper()

	playlist := models.NewPlaylist(0, userID, "sp1", "The Strokes - 14-08-2026")
	playlist.SetArtistName("The Strokes")
	playlist.SetVenue("Red Rocks")
	playlist.SetEventDate("14-08-2026")
	playlist.SetSetlistID("set1")
	playlist.SetSongs([]models.PlaylistSong{
		{Position: 1, Title: "Reptilia", SpotifyTrackID: "trk1"},
		{Position: 2, Title: "Obscure B-Side"},
	})

	if err := e.playlists.Create(playlist); err != nil {
		t.Fatalf("failed to seed playlist: %v", err)
	}
	return playlist
}

// builderResult assembles a canned build result backed by a stored playlist.
func (e *serverEnv) builderResult(userID string) (*tasks.BuildResult, error) {
	playlist := models.NewPlaylist(0, userID, "sp1", "The Strokes - 14-08-2026")
	playlist.SetArtistName("The Strokes")
	playlist.SetVenue("Red Rocks")
	playlist.SetEventDate("14-08-2026")
	playlist.SetSetlistID("set1")
	playlist.SetSongs([]models.PlaylistSong{
		{Position: 1, Title: "Reptilia", SpotifyTrackID: "trk1"},
		{Position: 2, Title: "Obscure B-Side"},
	})

	if err := e.playlists.Create(playlist); err != nil {
		return nil, err
	}

	return &tasks.BuildResult{
		Playlist:   playlist,
		SpotifyURL: "https://open.spotify.com/playlist/sp1",
		Matches: []tasks.SongMatchResult{
			{Title: "Reptilia", Matched: &services.SpotifyTrack{ID: "trk1", Name: "Reptilia", URI: "spotify:track:trk1"}},
			{Title: "Obscure B-Side"},
		},
		MatchedCount:    1,
		MissedCount:     1,
		TotalSongs:      2,
		MatchPercentage: 50,
	}, nil
}

func TestRegister(t *testing.T) {
	t.Run("Redirects To Provider", func(t *testing.T) {
		env := newServerEnv(t)

		rec := env.do(http.MethodPost, "/register", nil, registerForm("alice"))
		if rec.Code != http.StatusSeeOther {
			t.Fatalf("expected 303, got %d", rec.Code)
		}
		loc := rec.Header().Get("Location")
		if !strings.Contains(loc, "/authorize") || !strings.Contains(loc, "state=") {
			t.Errorf("expected a provider authorization URL, got %s", loc)
		}
		findSessionCookie(t, rec)
	})

	t.Run("Duplicate Username", func(t *testing.T) {
		env := newServerEnv(t)
		env.signUp(t, "alice")

		rec := env.do(http.MethodPost, "/register", nil, registerForm("alice"))
		if rec.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "username is taken") {
			t.Error("expected the taken-username message")
		}
	})

	t.Run("Missing Fields", func(t *testing.T) {
		env := newServerEnv(t)

		rec := env.do(http.MethodPost, "/register", nil, url.Values{"username": {"alice"}})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestCallback(t *testing.T) {
	t.Run("Links The Account", func(t *testing.T) {
		env := newServerEnv(t)
		cookie, state := env.signUp(t, "alice")

		env.linkAccount(t, cookie, state)

		user, err := env.creds.GetByUsername("alice")
		if err != nil {
			t.Fatalf("failed to get user: %v", err)
		}
		if !user.Linked() {
			t.Error("expected the account to be linked after the callback")
		}
	})

	t.Run("State Consumed Once", func(t *testing.T) {
		env := newServerEnv(t)
		cookie, state := env.signUp(t, "alice")
		env.linkAccount(t, cookie, state)

		rec := env.do(http.MethodGet, "/callback?code=auth-code&state="+url.QueryEscape(state), cookie, nil)
		if rec.Code != http.StatusForbidden {
			t.Errorf("expected a replay to get 403, got %d", rec.Code)
		}
	})

	t.Run("Forged State", func(t *testing.T) {
		env := newServerEnv(t)
		cookie, _ := env.signUp(t, "alice")

		rec := env.do(http.MethodGet, "/callback?code=auth-code&state="+shared.GenerateState(), cookie, nil)
		if rec.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "not valid") {
			t.Error("expected the neutral invalid-link message")
		}
	})

	t.Run("Another User's State", func(t *testing.T) {
		env := newServerEnv(t)
		_, aliceState := env.signUp(t, "alice")
		bobCookie, _ := env.signUp(t, "bob")

		rec := env.do(http.MethodGet, "/callback?code=auth-code&state="+url.QueryEscape(aliceState), bobCookie, nil)
		if rec.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", rec.Code)
		}
	})

	t.Run("Missing Parameters", func(t *testing.T) {
		env := newServerEnv(t)
		cookie, _ := env.signUp(t, "alice")

		rec := env.do(http.MethodGet, "/callback", cookie, nil)
		if rec.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", rec.Code)
		}
	})
}

func TestLogin(t *testing.T) {
	t.Run("Valid Credentials", func(t *testing.T) {
		env := newServerEnv(t)
		env.signUp(t, "alice")

		rec := env.do(http.MethodPost, "/login", nil, url.Values{
			"username": {"alice"},
			"password": {"hunter2"},
		})
		if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/home" {
			t.Fatalf("expected a redirect to /home, got %d to %q", rec.Code, rec.Header().Get("Location"))
		}
		findSessionCookie(t, rec)
	})

	t.Run("Wrong Password", func(t *testing.T) {
		env := newServerEnv(t)
		env.signUp(t, "alice")

		rec := env.do(http.MethodPost, "/login", nil, url.Values{
			"username": {"alice"},
			"password": {"wrong"},
		})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Invalid username or password.") {
			t.Error("expected the invalid-credentials message")
		}
	})

	t.Run("Unknown Username Looks The Same", func(t *testing.T) {
		env := newServerEnv(t)

		rec := env.do(http.MethodPost, "/login", nil, url.Values{
			"username": {"ghost"},
			"password": {"hunter2"},
		})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Invalid username or password.") {
			t.Error("expected the same message as a wrong password")
		}
	})
}

func TestLogout(t *testing.T) {
	env := newServerEnv(t)
	cookie, _ := env.signUp(t, "alice")

	rec := env.do(http.MethodPost, "/logout", cookie, nil)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
		t.Fatalf("expected a redirect to the landing page, got %d", rec.Code)
	}

	// the session is gone server-side, not just the cookie
	rec = env.do(http.MethodGet, "/home", cookie, nil)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Errorf("expected the old cookie to be anonymous, got %d", rec.Code)
	}
}

func TestRequireUser(t *testing.T) {
	env := newServerEnv(t)

	protected := []string{"/home", "/band/search", "/band/art1", "/playlist/art1/set1", "/playlists/pl1"}
	for _, path := range protected {
		rec := env.do(http.MethodGet, path, nil, nil)
		if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
			t.Errorf("expected %s to redirect anonymous users to /login, got %d", path, rec.Code)
		}
	}
}

var resetTokenPattern = regexp.MustCompile(`name="reset_token" value="([A-Za-z0-9_-]+)"`)

func TestForgotFlow(t *testing.T) {
	t.Run("Unknown Username Stays Neutral", func(t *testing.T) {
		env := newServerEnv(t)

		rec := env.do(http.MethodPost, "/forgot", nil, url.Values{"username": {"ghost"}})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "If that account exists") {
			t.Error("expected the neutral message")
		}
	})

	t.Run("Wrong Answer", func(t *testing.T) {
		env := newServerEnv(t)
		env.signUp(t, "alice")
		user, _ := env.creds.GetByUsername("alice")

		rec := env.do(http.MethodPost, "/forgot/"+user.ID(), nil, url.Values{"recovery_answer": {"wrong"}})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("Reset End To End", func(t *testing.T) {
		env := newServerEnv(t)
		env.signUp(t, "alice")
		user, _ := env.creds.GetByUsername("alice")

		// the username prompt redirects to the recovery question
		rec := env.do(http.MethodPost, "/forgot", nil, url.Values{"username": {"alice"}})
		if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/forgot/"+user.ID() {
			t.Fatalf("expected a redirect to the question, got %d", rec.Code)
		}

		rec = env.do(http.MethodGet, "/forgot/"+user.ID(), nil, nil)
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "First concert?") {
			t.Fatalf("expected the recovery question, got %d", rec.Code)
		}

		// the right answer mints a reset ticket
		rec = env.do(http.MethodPost, "/forgot/"+user.ID(), nil, url.Values{"recovery_answer": {"The Strokes"}})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected the new-password form, got %d", rec.Code)
		}
		match := resetTokenPattern.FindStringSubmatch(rec.Body.String())
		if match == nil {
			t.Fatal("expected a reset token in the form")
		}
		token := match[1]

		rec = env.do(http.MethodPost, "/forgot/"+user.ID()+"/new", nil, url.Values{
			"reset_token": {token},
			"password":    {"correct-horse"},
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected the reset to succeed, got %d", rec.Code)
		}

		if got, _ := env.creds.Authenticate("alice", "hunter2"); got != nil {
			t.Error("expected the old password to stop working")
		}
		if got, _ := env.creds.Authenticate("alice", "correct-horse"); got == nil {
			t.Error("expected the new password to work")
		}

		// the ticket is consume-once
		rec = env.do(http.MethodPost, "/forgot/"+user.ID()+"/new", nil, url.Values{
			"reset_token": {token},
			"password":    {"again"},
		})
		if rec.Code != http.StatusForbidden {
			t.Errorf("expected a replayed ticket to get 403, got %d", rec.Code)
		}
	})

	t.Run("Ticket Bound To User", func(t *testing.T) {
		env := newServerEnv(t)
		env.signUp(t, "alice")
		env.signUp(t, "bob")
		alice, _ := env.creds.GetByUsername("alice")
		bob, _ := env.creds.GetByUsername("bob")

		rec := env.do(http.MethodPost, "/forgot/"+alice.ID(), nil, url.Values{"recovery_answer": {"The Strokes"}})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected a reset ticket, got %d", rec.Code)
		}
		match := resetTokenPattern.FindStringSubmatch(rec.Body.String())
		if match == nil {
			t.Fatal("expected a reset token in the form")
		}

		// alice's ticket cannot reset bob's password
		rec = env.do(http.MethodPost, "/forgot/"+bob.ID()+"/new", nil, url.Values{
			"reset_token": {match[1]},
			"password":    {"stolen"},
		})
		if rec.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", rec.Code)
		}
	})

	t.Run("OAuth State Is Not A Reset Ticket", func(t *testing.T) {
		env := newServerEnv(t)
		_, state := env.signUp(t, "alice")
		user, _ := env.creds.GetByUsername("alice")

		rec := env.do(http.MethodPost, "/forgot/"+user.ID()+"/new", nil, url.Values{
			"reset_token": {state},
			"password":    {"stolen"},
		})
		if rec.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", rec.Code)
		}
	})
}
