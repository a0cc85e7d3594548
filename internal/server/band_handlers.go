package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/setplaylist/setplaylist/internal/models"
	"github.com/setplaylist/setplaylist/internal/services"
	"github.com/setplaylist/setplaylist/internal/shared"
	"github.com/setplaylist/setplaylist/internal/web"
)

// homeData feeds the signed-in home page.
type homeData struct {
	Playlists []*models.Playlist
}

// Home shows the search box and the user's saved playlists, newest first.
func (a *App) Home(w http.ResponseWriter, r *http.Request) {
	user := UserFrom(r.Context())

	playlists, err := a.playlists.List(map[string]any{"user_id": user.ID()})
	if err != nil {
		a.fail(w, http.StatusInternalServerError, "Could not load your playlists.", err)
		return
	}

	a.page(w, http.StatusOK, "home.html", authedPage(r, "Home", homeData{Playlists: playlists}))
}

// EditForm renders the account settings page. Users can only edit their own
// account.
func (a *App) EditForm(w http.ResponseWriter, r *http.Request) {
	user := UserFrom(r.Context())
	if r.PathValue("id") != user.ID() {
		a.fail(w, http.StatusForbidden, "You can only edit your own account.", nil)
		return
	}

	a.page(w, http.StatusOK, "edit.html", authedPage(r, "Account", nil))
}

// Edit applies account settings changes.
func (a *App) Edit(w http.ResponseWriter, r *http.Request) {
	user := UserFrom(r.Context())
	if r.PathValue("id") != user.ID() {
		a.fail(w, http.StatusForbidden, "You can only edit your own account.", nil)
		return
	}

	if err := r.ParseForm(); err != nil {
		a.fail(w, http.StatusBadRequest, "Invalid form submission.", err)
		return
	}

	err := a.creds.UpdateProfile(user,
		r.PostFormValue("email"),
		r.PostFormValue("recovery_question"),
		r.PostFormValue("password"),
		r.PostFormValue("recovery_answer"),
	)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidInput) {
			a.page(w, http.StatusBadRequest, "edit.html", web.PageData{
				Title: "Account",
				User:  user,
				Flash: "Email and recovery question are required.",
			})
			return
		}
		a.fail(w, http.StatusInternalServerError, "Could not save your changes.", err)
		return
	}

	a.page(w, http.StatusOK, "edit.html", web.PageData{
		Title: "Account",
		User:  user,
		Flash: "Your changes have been saved.",
	})
}

// searchData feeds the artist search results page.
type searchData struct {
	Query   string
	Artists []services.SpotifyArtist
}

// BandSearch searches the Spotify catalog for artists.
func (a *App) BandSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("search"))
	if query == "" {
		http.Redirect(w, r, "/home", http.StatusSeeOther)
		return
	}

	artists, err := a.catalog.SearchArtists(r.Context(), query)
	if err != nil {
		a.fail(w, http.StatusBadGateway, "Artist search is unavailable right now.", err)
		return
	}

	a.page(w, http.StatusOK, "search.html", authedPage(r, "Search", searchData{
		Query:   query,
		Artists: artists,
	}))
}

// bandData feeds the artist detail page.
type bandData struct {
	Artist   services.SpotifyArtist
	Setlists []services.FMSetlist
	Events   []services.BitEvent
}

// Band shows an artist with their recent setlists and upcoming shows.
//
// Setlists and events come from different providers than the artist record;
// either lookup coming up empty degrades that section, never the page.
func (a *App) Band(w http.ResponseWriter, r *http.Request) {
	artist, err := a.catalog.Artist(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, http.StatusNotFound, "We could not find that artist.", err)
		return
	}

	var setlists []services.FMSetlist
	fmArtist, err := a.setlists.SearchArtist(r.Context(), artist.Name)
	if err != nil && !errors.Is(err, shared.ErrArtistNotFound) {
		a.logger.Warn("setlist lookup failed", "artist", artist.Name, "error", err)
	}
	if fmArtist != nil {
		setlists, err = a.setlists.ArtistSetlists(r.Context(), fmArtist.MBID)
		if err != nil {
			a.logger.Warn("setlist lookup failed", "artist", artist.Name, "error", err)
		}
	}

	events, err := a.events.UpcomingEvents(r.Context(), artist.Name)
	if err != nil {
		a.logger.Warn("event lookup failed", "artist", artist.Name, "error", err)
	}

	a.page(w, http.StatusOK, "band.html", authedPage(r, artist.Name, bandData{
		Artist:   *artist,
		Setlists: setlists,
		Events:   events,
	}))
}
