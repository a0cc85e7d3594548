// Spotify API implementation
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/setplaylist/setplaylist/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

// UserScopes are the authorization scopes requested when linking an account:
// enough to read the user's profile and create private playlists.
var UserScopes = []string{
	"user-read-private",
	"playlist-read-private",
	"playlist-read-collaborative",
	"playlist-modify-private",
}

type followers struct {
	Total int `json:"total"`
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Country     string         `json:"country"`
	Product     string         `json:"product"`
	Followers   followers      `json:"followers"`
	Images      []SpotifyImage `json:"images"`
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Genres    []string       `json:"genres"`
	Followers followers      `json:"followers"`
	Images    []SpotifyImage `json:"images"`
	URI       string         `json:"uri"`
}

// Image returns the artist's primary image URL, or "" when none exists.
func (a SpotifyArtist) Image() string {
	if len(a.Images) == 0 {
		return ""
	}
	return a.Images[0].URL
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	ReleaseDate string          `json:"release_date"`
	Images      []SpotifyImage  `json:"images"`
	URI         string          `json:"uri"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	Explicit   bool            `json:"explicit"`
	Popularity int             `json:"popularity"`
	URI        string          `json:"uri"`
}

// SpotifyPlaylist represents a Spotify playlist.
type SpotifyPlaylist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
	URI         string `json:"uri"`
	ExternalURL struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

type artistPage struct {
	Items []SpotifyArtist `json:"items"`
	Total int             `json:"total"`
}

type trackPage struct {
	Items []SpotifyTrack `json:"items"`
	Total int            `json:"total"`
}

// SpotifyService is the client for the Spotify Web API.
//
// Public catalog reads (artist search, top tracks) run under an app token
// obtained with the client-credentials grant. Calls on a user's behalf
// (profile, playlist creation) take the user's access token explicitly; token
// lifecycle belongs to the auth package, not this client.
type SpotifyService struct {
	config     *oauth2.Config
	app        *clientcredentials.Config
	httpClient *http.Client
	baseURL    string
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(credentials map[string]string) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = "http://localhost:8080/callback"
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       UserScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	app := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyTokenURL,
	}

	return &SpotifyService{
		config:     config,
		app:        app,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    spotifyBaseURL,
	}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// OAuthConfig returns the user-authorization config consumed by the auth
// broker and refresh coordinator.
func (s *SpotifyService) OAuthConfig() *oauth2.Config {
	return s.config
}

// appToken fetches (or reuses) the client-credentials app token.
func (s *SpotifyService) appToken(ctx context.Context) (string, error) {
	token, err := s.app.TokenSource(context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)).Token()
	if err != nil {
		return "", fmt.Errorf("%w: app token: %v", shared.ErrAPIRequest, err)
	}
	return token.AccessToken, nil
}

// doRequest performs an authenticated HTTP request against the Spotify API.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint, token string, body, result any) error {
	apiURL := s.baseURL + endpoint

	var reqBody *bytes.Buffer
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewBuffer(payload)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: spotify status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// doAppRequest performs a request under the client-credentials app token.
func (s *SpotifyService) doAppRequest(ctx context.Context, method, endpoint string, result any) error {
	token, err := s.appToken(ctx)
	if err != nil {
		return err
	}
	return s.doRequest(ctx, method, endpoint, token, nil, result)
}

// SearchArtists searches the catalog for artists matching the query.
func (s *SpotifyService) SearchArtists(ctx context.Context, query string) ([]SpotifyArtist, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty search query", shared.ErrInvalidInput)
	}

	endpoint := fmt.Sprintf("/search?type=artist&q=%s", url.QueryEscape("artist:"+query))

	var response struct {
		Artists artistPage `json:"artists"`
	}

	if err := s.doAppRequest(ctx, http.MethodGet, endpoint, &response); err != nil {
		return nil, err
	}

	return response.Artists.Items, nil
}

// Artist retrieves an artist by ID.
func (s *SpotifyService) Artist(ctx context.Context, artistID string) (*SpotifyArtist, error) {
	var artist SpotifyArtist
	endpoint := fmt.Sprintf("/artists/%s", artistID)
	if err := s.doAppRequest(ctx, http.MethodGet, endpoint, &artist); err != nil {
		return nil, err
	}
	return &artist, nil
}

// ArtistTopTracks retrieves an artist's most popular tracks.
func (s *SpotifyService) ArtistTopTracks(ctx context.Context, artistID string) ([]SpotifyTrack, error) {
	endpoint := fmt.Sprintf("/artists/%s/top-tracks", artistID)

	var response struct {
		Tracks []SpotifyTrack `json:"tracks"`
	}

	if err := s.doAppRequest(ctx, http.MethodGet, endpoint, &response); err != nil {
		return nil, err
	}

	return response.Tracks, nil
}

// SearchTrack searches for a track by title and artist and returns the best
// match, or [shared.ErrTrackNotFound] when the catalog has nothing.
func (s *SpotifyService) SearchTrack(ctx context.Context, title, artist string) (*SpotifyTrack, error) {
	query := fmt.Sprintf("track:%s artist:%s", title, artist)
	endpoint := fmt.Sprintf("/search?type=track&limit=1&q=%s", url.QueryEscape(query))

	var response struct {
		Tracks trackPage `json:"tracks"`
	}

	if err := s.doAppRequest(ctx, http.MethodGet, endpoint, &response); err != nil {
		return nil, err
	}

	if len(response.Tracks.Items) == 0 {
		return nil, fmt.Errorf("%w: %s by %s", shared.ErrTrackNotFound, title, artist)
	}

	return &response.Tracks.Items[0], nil
}

// UserProfile retrieves the profile of the user the access token belongs to.
func (s *SpotifyService) UserProfile(ctx context.Context, accessToken string) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, http.MethodGet, "/me", accessToken, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreatePlaylist creates a private playlist on the user's account.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, accessToken, spotifyUserID, name, description string) (*SpotifyPlaylist, error) {
	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(spotifyUserID))

	body := map[string]any{
		"name":        name,
		"description": description,
		"public":      false,
	}

	var playlist SpotifyPlaylist
	if err := s.doRequest(ctx, http.MethodPost, endpoint, accessToken, body, &playlist); err != nil {
		return nil, err
	}

	return &playlist, nil
}

// AddTracks appends track URIs to a playlist, chunking at the API's limit of
// 100 URIs per request.
func (s *SpotifyService) AddTracks(ctx context.Context, accessToken, playlistID string, uris []string) error {
	const chunkSize = 100

	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))

	for start := 0; start < len(uris); start += chunkSize {
		end := min(start+chunkSize, len(uris))

		body := map[string]any{"uris": uris[start:end]}
		if err := s.doRequest(ctx, http.MethodPost, endpoint, accessToken, body, nil); err != nil {
			return err
		}
	}

	return nil
}
