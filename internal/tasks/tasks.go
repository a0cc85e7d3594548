// package tasks implements playlist generation from concert setlists.
//
// The core abstraction is [SetlistEngine], which matches performed songs
// against the Spotify catalog, creates the playlist on the user's account,
// and persists the result. Operations emit progress updates via channels for
// non-blocking status reporting to the web layer.
package tasks

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/setplaylist/setplaylist/internal/models"
	"github.com/setplaylist/setplaylist/internal/repositories"
	"github.com/setplaylist/setplaylist/internal/services"
	"github.com/setplaylist/setplaylist/internal/shared"
	"golang.org/x/time/rate"
)

// SpotifyAPI is the slice of the Spotify client the engine consumes.
type SpotifyAPI interface {
	SearchTrack(ctx context.Context, title, artist string) (*services.SpotifyTrack, error)
	ArtistTopTracks(ctx context.Context, artistID string) ([]services.SpotifyTrack, error)
	UserProfile(ctx context.Context, accessToken string) (*services.SpotifyUser, error)
	CreatePlaylist(ctx context.Context, accessToken, spotifyUserID, name, description string) (*services.SpotifyPlaylist, error)
	AddTracks(ctx context.Context, accessToken, playlistID string, uris []string) error
}

// SongMatchResult represents the result of attempting to match a single song.
type SongMatchResult struct {
	Title   string                 // Song title as performed
	Matched *services.SpotifyTrack // Matched track (nil if not found)
	Err     error                  // Error if the match failed outright
}

// BuildResult contains all data from a completed playlist build.
type BuildResult struct {
	Playlist        *models.Playlist  // Persisted playlist record
	SpotifyURL      string            // Link to open the playlist on Spotify
	Matches         []SongMatchResult // Individual song match results
	MatchedCount    int               // Songs matched to tracks
	MissedCount     int               // Songs with no catalog match
	TotalSongs      int               // Songs processed
	MatchPercentage float64           // Success rate as percentage
}

// BuildParams identifies what to build and on whose behalf.
type BuildParams struct {
	AccessToken string
	User        *models.User
	Artist      services.SpotifyArtist
	Setlist     services.FMSetlist
}

// HypeParams identifies a top-tracks build.
type HypeParams struct {
	AccessToken string
	User        *models.User
	Artist      services.SpotifyArtist
}

// SetlistEngine builds Spotify playlists from setlists and top-track lists.
type SetlistEngine struct {
	spotify   SpotifyAPI
	playlists *repositories.PlaylistRepository
	limiter   *rate.Limiter
	logger    *log.Logger
}

// NewSetlistEngine creates a SetlistEngine with the provided dependencies.
func NewSetlistEngine(spotify SpotifyAPI, playlists *repositories.PlaylistRepository, logger *log.Logger) *SetlistEngine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &SetlistEngine{
		spotify:   spotify,
		playlists: playlists,
		limiter:   rate.NewLimiter(rate.Limit(5), 1),
		logger:    logger,
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default so progress reporting never stalls the build.
func (e *SetlistEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Build matches each setlist song against the Spotify catalog, creates a
// private playlist on the user's account, adds the matched tracks, and
// persists the playlist with its full song list (missed songs included, so
// the result page can show what was left out).
func (e *SetlistEngine) Build(ctx context.Context, progress chan<- ProgressUpdate, params BuildParams) (*BuildResult, error) {
	songs := params.Setlist.SongNames()
	if len(songs) == 0 {
		return nil, fmt.Errorf("%w: setlist has no songs", shared.ErrSetlistNotFound)
	}

	e.sendProgress(progress, ProgressUpdate{Phase: PhaseMatch, Message: "matching songs", Total: len(songs)})

	matches := make([]SongMatchResult, 0, len(songs))
	var uris []string

	for i, title := range songs {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrTimeout, err)
		}

		match := SongMatchResult{Title: title}
		track, err := e.spotify.SearchTrack(ctx, title, params.Artist.Name)
		if err == nil {
			match.Matched = track
			uris = append(uris, track.URI)
		} else {
			match.Err = err
		}
		matches = append(matches, match)

		e.sendProgress(progress, ProgressUpdate{Phase: PhaseMatch, Message: title, Current: i + 1, Total: len(songs)})
	}

	name := fmt.Sprintf("%s - %s", params.Artist.Name, params.Setlist.EventDate)
	description := fmt.Sprintf("Setlist from %s on %s", params.Setlist.Venue.Name, params.Setlist.EventDate)

	created, err := e.createAndFill(ctx, progress, params.AccessToken, name, description, uris)
	if err != nil {
		return nil, err
	}

	record, err := e.persist(params, created, matches)
	if err != nil {
		return nil, err
	}

	e.sendProgress(progress, ProgressUpdate{Phase: PhaseDone, Message: "playlist ready"})

	return e.result(record, created, matches), nil
}

// Hype builds a playlist from the artist's current top tracks.
func (e *SetlistEngine) Hype(ctx context.Context, progress chan<- ProgressUpdate, params HypeParams) (*BuildResult, error) {
	e.sendProgress(progress, ProgressUpdate{Phase: PhaseFetch, Message: "fetching top tracks"})

	tracks, err := e.spotify.ArtistTopTracks(ctx, params.Artist.ID)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: no top tracks for %s", shared.ErrTrackNotFound, params.Artist.Name)
	}

	matches := make([]SongMatchResult, 0, len(tracks))
	uris := make([]string, 0, len(tracks))
	for i := range tracks {
		matches = append(matches, SongMatchResult{Title: tracks[i].Name, Matched: &tracks[i]})
		uris = append(uris, tracks[i].URI)
	}

	name := fmt.Sprintf("%s - Hype Setlist", params.Artist.Name)
	description := fmt.Sprintf("Top songs by %s", params.Artist.Name)

	created, err := e.createAndFill(ctx, progress, params.AccessToken, name, description, uris)
	if err != nil {
		return nil, err
	}

	record, err := e.persist(BuildParams{User: params.User, Artist: params.Artist}, created, matches)
	if err != nil {
		return nil, err
	}

	e.sendProgress(progress, ProgressUpdate{Phase: PhaseDone, Message: "playlist ready"})

	return e.result(record, created, matches), nil
}

// createAndFill creates the Spotify playlist and adds the matched tracks.
func (e *SetlistEngine) createAndFill(ctx context.Context, progress chan<- ProgressUpdate, accessToken, name, description string, uris []string) (*services.SpotifyPlaylist, error) {
	e.sendProgress(progress, ProgressUpdate{Phase: PhaseCreate, Message: "creating playlist"})

	profile, err := e.spotify.UserProfile(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	created, err := e.spotify.CreatePlaylist(ctx, accessToken, profile.ID, name, description)
	if err != nil {
		return nil, err
	}

	if len(uris) > 0 {
		if err := e.spotify.AddTracks(ctx, accessToken, created.ID, uris); err != nil {
			return nil, err
		}
	}

	return created, nil
}

// persist saves the playlist record with one song row per setlist entry.
func (e *SetlistEngine) persist(params BuildParams, created *services.SpotifyPlaylist, matches []SongMatchResult) (*models.Playlist, error) {
	record := models.NewPlaylist(0, params.User.ID(), created.ID, created.Name)
	record.SetArtistName(params.Artist.Name)
	record.SetVenue(params.Setlist.Venue.Name)
	record.SetEventDate(params.Setlist.EventDate)
	record.SetSetlistID(params.Setlist.ID)

	songs := make([]models.PlaylistSong, 0, len(matches))
	for i, match := range matches {
		song := models.PlaylistSong{Position: i + 1, Title: match.Title}
		if match.Matched != nil {
			song.SpotifyTrackID = match.Matched.ID
		}
		songs = append(songs, song)
	}
	record.SetSongs(songs)

	if err := e.playlists.Create(record); err != nil {
		return nil, err
	}

	return record, nil
}

// result assembles the build summary.
func (e *SetlistEngine) result(record *models.Playlist, created *services.SpotifyPlaylist, matches []SongMatchResult) *BuildResult {
	matched := 0
	for _, m := range matches {
		if m.Matched != nil {
			matched++
		}
	}

	total := len(matches)
	percentage := 0.0
	if total > 0 {
		percentage = float64(matched) / float64(total) * 100
	}

	return &BuildResult{
		Playlist:        record,
		SpotifyURL:      created.ExternalURL.Spotify,
		Matches:         matches,
		MatchedCount:    matched,
		MissedCount:     total - matched,
		TotalSongs:      total,
		MatchPercentage: percentage,
	}
}
