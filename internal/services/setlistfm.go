// Setlist.fm API client
//
// Response types based on https://api.setlist.fm/docs/1.0/
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/setplaylist/setplaylist/internal/shared"
	"golang.org/x/time/rate"
)

const setlistFMBaseURL = "https://api.setlist.fm/rest/1.0"

// FMArtist represents a Setlist.fm artist entry.
type FMArtist struct {
	MBID     string `json:"mbid"`
	Name     string `json:"name"`
	SortName string `json:"sortName"`
	URL      string `json:"url"`
}

// FMCity is the city a venue belongs to.
type FMCity struct {
	Name      string `json:"name"`
	StateCode string `json:"stateCode"`
	Country   struct {
		Code string `json:"code"`
		Name string `json:"name"`
	} `json:"country"`
}

// FMVenue represents a concert venue.
type FMVenue struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	City FMCity `json:"city"`
}

// FMSong is one performed song within a set.
type FMSong struct {
	Name string `json:"name"`
}

// FMSet is a contiguous block of songs (main set, encore).
type FMSet struct {
	Name   string   `json:"name"`
	Encore int      `json:"encore"`
	Songs  []FMSong `json:"song"`
}

// FMSetlist represents one concert's setlist.
type FMSetlist struct {
	ID        string   `json:"id"`
	EventDate string   `json:"eventDate"`
	Artist    FMArtist `json:"artist"`
	Venue     FMVenue  `json:"venue"`
	Sets      struct {
		Set []FMSet `json:"set"`
	} `json:"sets"`
	URL string `json:"url"`
}

// SongNames flattens all sets into the ordered list of performed songs.
func (s FMSetlist) SongNames() []string {
	var names []string
	for _, set := range s.Sets.Set {
		for _, song := range set.Songs {
			names = append(names, song.Name)
		}
	}
	return names
}

// SetlistService is the client for the Setlist.fm REST API.
//
// The API enforces a low request budget, so every call waits on a shared rate
// limiter before going out.
type SetlistService struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSetlistService creates a Setlist.fm client with the given API key. An
// empty baseURL falls back to the public endpoint.
func NewSetlistService(apiKey, baseURL string) (*SetlistService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing setlist.fm api_key", shared.ErrMissingCredentials)
	}
	if baseURL == "" {
		baseURL = setlistFMBaseURL
	}

	return &SetlistService{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(2), 1),
	}, nil
}

func (s *SetlistService) Name() string {
	return "Setlist.fm"
}

// doRequest performs a rate-limited GET against the Setlist.fm API.
func (s *SetlistService) doRequest(ctx context.Context, endpoint string, result any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrTimeout, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return shared.ErrSetlistNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: setlist.fm status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// SearchArtist finds the Setlist.fm artist whose name matches the given name,
// compared case-insensitively. Returns [shared.ErrArtistNotFound] when the
// search yields no usable match.
func (s *SetlistService) SearchArtist(ctx context.Context, name string) (*FMArtist, error) {
	endpoint := fmt.Sprintf("/search/artists?artistName=%s", url.QueryEscape(name))

	var response struct {
		Artists []FMArtist `json:"artist"`
	}

	if err := s.doRequest(ctx, endpoint, &response); err != nil {
		if err == shared.ErrSetlistNotFound {
			return nil, fmt.Errorf("%w: %s", shared.ErrArtistNotFound, name)
		}
		return nil, err
	}

	for _, artist := range response.Artists {
		if strings.EqualFold(artist.Name, name) {
			return &artist, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", shared.ErrArtistNotFound, name)
}

// ArtistSetlists retrieves recent setlists for an artist by MusicBrainz ID.
func (s *SetlistService) ArtistSetlists(ctx context.Context, mbid string) ([]FMSetlist, error) {
	endpoint := fmt.Sprintf("/artist/%s/setlists", url.PathEscape(mbid))

	var response struct {
		Setlists []FMSetlist `json:"setlist"`
	}

	if err := s.doRequest(ctx, endpoint, &response); err != nil {
		return nil, err
	}

	return response.Setlists, nil
}

// Setlist retrieves a single setlist by ID.
func (s *SetlistService) Setlist(ctx context.Context, setlistID string) (*FMSetlist, error) {
	endpoint := fmt.Sprintf("/setlist/%s", url.PathEscape(setlistID))

	var setlist FMSetlist
	if err := s.doRequest(ctx, endpoint, &setlist); err != nil {
		return nil, err
	}

	return &setlist, nil
}
