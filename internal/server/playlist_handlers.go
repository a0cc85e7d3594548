package server

import (
	"errors"
	"net/http"

	"github.com/setplaylist/setplaylist/internal/models"
	"github.com/setplaylist/setplaylist/internal/services"
	"github.com/setplaylist/setplaylist/internal/shared"
	"github.com/setplaylist/setplaylist/internal/tasks"
	"github.com/setplaylist/setplaylist/internal/web"
)

// accessToken fetches a fresh provider token for the request's user. When it
// cannot, it writes the appropriate response (re-link page, connect redirect,
// or error page) and reports false.
func (a *App) accessToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	user := UserFrom(r.Context())
	session := SessionFrom(r.Context())

	token, err := a.refresh.EnsureFreshAccessToken(r.Context(), user, session)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrTokenRevoked):
			a.page(w, http.StatusOK, "relink.html", web.PageData{Title: "Reconnect Spotify", User: user})
		case errors.Is(err, shared.ErrNotLinked):
			http.Redirect(w, r, "/register/link", http.StatusSeeOther)
		case errors.Is(err, shared.ErrTimeout):
			a.fail(w, http.StatusGatewayTimeout, "Spotify is not responding. Try again in a moment.", err)
		default:
			a.fail(w, http.StatusBadGateway, "Could not reach Spotify.", err)
		}
		return "", false
	}

	return token, true
}

// setlistData feeds the setlist preview page.
type setlistData struct {
	Artist  services.SpotifyArtist
	Setlist services.FMSetlist
	Songs   []string
}

// resultData feeds the build result page.
type resultData struct {
	Result *tasks.BuildResult
}

// loadSetlistPage fetches the artist and setlist for a preview or build.
func (a *App) loadSetlistPage(w http.ResponseWriter, r *http.Request) (*services.SpotifyArtist, *services.FMSetlist, bool) {
	artist, err := a.catalog.Artist(r.Context(), r.PathValue("bandID"))
	if err != nil {
		a.fail(w, http.StatusNotFound, "We could not find that artist.", err)
		return nil, nil, false
	}

	setlist, err := a.setlists.Setlist(r.Context(), r.PathValue("setlistID"))
	if err != nil {
		if errors.Is(err, shared.ErrSetlistNotFound) {
			a.fail(w, http.StatusNotFound, "We could not find that setlist.", err)
		} else {
			a.fail(w, http.StatusBadGateway, "Setlist lookup is unavailable right now.", err)
		}
		return nil, nil, false
	}

	return artist, setlist, true
}

// SetlistPreview shows the songs from a show with a build button.
func (a *App) SetlistPreview(w http.ResponseWriter, r *http.Request) {
	artist, setlist, ok := a.loadSetlistPage(w, r)
	if !ok {
		return
	}

	a.page(w, http.StatusOK, "setlist.html", authedPage(r, artist.Name, setlistData{
		Artist:  *artist,
		Setlist: *setlist,
		Songs:   setlist.SongNames(),
	}))
}

// SetlistBuild creates the playlist on the user's Spotify account and shows
// the match breakdown.
func (a *App) SetlistBuild(w http.ResponseWriter, r *http.Request) {
	artist, setlist, ok := a.loadSetlistPage(w, r)
	if !ok {
		return
	}

	token, ok := a.accessToken(w, r)
	if !ok {
		return
	}

	result, err := a.builder.Build(r.Context(), nil, tasks.BuildParams{
		AccessToken: token,
		User:        UserFrom(r.Context()),
		Artist:      *artist,
		Setlist:     *setlist,
	})
	if err != nil {
		a.fail(w, http.StatusBadGateway, "Could not build the playlist. Try again.", err)
		return
	}

	a.page(w, http.StatusOK, "result.html", authedPage(r, result.Playlist.Name(), resultData{Result: result}))
}

// hypeData feeds the hype playlist preview page.
type hypeData struct {
	Artist services.SpotifyArtist
	Tracks []services.SpotifyTrack
}

// HypePreview shows the artist's current top tracks with a build button.
func (a *App) HypePreview(w http.ResponseWriter, r *http.Request) {
	artist, err := a.catalog.Artist(r.Context(), r.PathValue("bandID"))
	if err != nil {
		a.fail(w, http.StatusNotFound, "We could not find that artist.", err)
		return
	}

	tracks, err := a.catalog.ArtistTopTracks(r.Context(), artist.ID)
	if err != nil {
		a.fail(w, http.StatusBadGateway, "Top tracks are unavailable right now.", err)
		return
	}

	a.page(w, http.StatusOK, "hype.html", authedPage(r, artist.Name, hypeData{
		Artist: *artist,
		Tracks: tracks,
	}))
}

// HypeBuild creates a top-tracks playlist on the user's Spotify account.
func (a *App) HypeBuild(w http.ResponseWriter, r *http.Request) {
	artist, err := a.catalog.Artist(r.Context(), r.PathValue("bandID"))
	if err != nil {
		a.fail(w, http.StatusNotFound, "We could not find that artist.", err)
		return
	}

	token, ok := a.accessToken(w, r)
	if !ok {
		return
	}

	result, err := a.builder.Hype(r.Context(), nil, tasks.HypeParams{
		AccessToken: token,
		User:        UserFrom(r.Context()),
		Artist:      *artist,
	})
	if err != nil {
		a.fail(w, http.StatusBadGateway, "Could not build the playlist. Try again.", err)
		return
	}

	a.page(w, http.StatusOK, "result.html", authedPage(r, result.Playlist.Name(), resultData{Result: result}))
}

// savedData feeds the saved playlist page.
type savedData struct {
	Playlist *models.Playlist
}

// SavedPlaylist shows a previously built playlist with its included and
// missing songs. Playlists are private to their owner.
func (a *App) SavedPlaylist(w http.ResponseWriter, r *http.Request) {
	user := UserFrom(r.Context())

	playlist, err := a.playlists.Get(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, shared.ErrPlaylistNotFound) {
			a.fail(w, http.StatusNotFound, "We could not find that playlist.", err)
		} else {
			a.fail(w, http.StatusInternalServerError, "Could not load that playlist.", err)
		}
		return
	}
	if playlist.UserID() != user.ID() {
		a.fail(w, http.StatusForbidden, "That playlist belongs to someone else.", nil)
		return
	}

	a.page(w, http.StatusOK, "saved.html", authedPage(r, playlist.Name(), savedData{Playlist: playlist}))
}
