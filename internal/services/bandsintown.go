// Bandsintown API client
//
// Response types based on https://rest.bandsintown.com documentation.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/setplaylist/setplaylist/internal/shared"
)

const bandsintownBaseURL = "https://rest.bandsintown.com"

// BitVenue is where an upcoming show takes place.
type BitVenue struct {
	Name    string `json:"name"`
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country"`
}

// BitEvent represents one upcoming show.
type BitEvent struct {
	ID       string   `json:"id"`
	Datetime string   `json:"datetime"`
	Venue    BitVenue `json:"venue"`
	URL      string   `json:"url"`
	Lineup   []string `json:"lineup"`
}

// BandsintownService is the client for the Bandsintown events API.
type BandsintownService struct {
	appID      string
	baseURL    string
	httpClient *http.Client
}

// NewBandsintownService creates a Bandsintown client with the given app id.
// An empty baseURL falls back to the public endpoint.
func NewBandsintownService(appID, baseURL string) (*BandsintownService, error) {
	if appID == "" {
		return nil, fmt.Errorf("%w: missing bandsintown app_id", shared.ErrMissingCredentials)
	}
	if baseURL == "" {
		baseURL = bandsintownBaseURL
	}

	return &BandsintownService{
		appID:      appID,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (s *BandsintownService) Name() string {
	return "Bandsintown"
}

// PrepArtistName escapes an artist name for the Bandsintown path segment.
// The API requires double escaping for a handful of characters beyond normal
// URL encoding.
func PrepArtistName(name string) string {
	replacer := strings.NewReplacer(
		"/", "%252F",
		"?", "%253F",
		"*", "%252A",
		`"`, "%27C",
	)
	return url.PathEscape(replacer.Replace(name))
}

// UpcomingEvents retrieves upcoming shows for an artist by name.
//
// Unknown artists come back from the API as a non-list body; that is treated
// as "no upcoming shows", not a failure, matching how the page presents it.
func (s *BandsintownService) UpcomingEvents(ctx context.Context, artistName string) ([]BitEvent, error) {
	endpoint := fmt.Sprintf("%s/artists/%s/events/?app_id=%s", s.baseURL, PrepArtistName(artistName), url.QueryEscape(s.appID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: bandsintown status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var events []BitEvent
	if err := json.Unmarshal(body, &events); err != nil {
		// non-list body: artist unknown to Bandsintown
		return nil, nil
	}

	return events, nil
}
