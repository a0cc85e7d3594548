package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/setplaylist/setplaylist/internal/shared"
	"golang.org/x/oauth2/clientcredentials"
)

// newTestSpotify builds a SpotifyService pointed at a stub API. The stub also
// serves the client-credentials token endpoint at /token.
func newTestSpotify(t *testing.T, mux *http.ServeMux) *SpotifyService {
	t.Helper()

	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"app-token","token_type":"Bearer","expires_in":3600}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	s, err := NewSpotifyService(map[string]string{
		"client_id":     "client-id",
		"client_secret": "client-secret",
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	s.baseURL = srv.URL
	s.httpClient = srv.Client()
	s.app = &clientcredentials.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		TokenURL:     srv.URL + "/token",
	}
	return s
}

func TestNewSpotifyService(t *testing.T) {
	t.Run("Valid Credentials", func(t *testing.T) {
		s, err := NewSpotifyService(map[string]string{
			"client_id":     "id",
			"client_secret": "secret",
		})
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}
		if s.Name() != "Spotify" {
			t.Errorf("expected name Spotify, got %s", s.Name())
		}
		if s.OAuthConfig().RedirectURL == "" {
			t.Error("expected a default redirect URL")
		}
	})

	t.Run("Missing Client ID", func(t *testing.T) {
		_, err := NewSpotifyService(map[string]string{"client_secret": "secret"})
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("Missing Client Secret", func(t *testing.T) {
		_, err := NewSpotifyService(map[string]string{"client_id": "id"})
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})
}

func TestSearchArtists(t *testing.T) {
	t.Run("Returns Matches", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /search", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("type") != "artist" {
				t.Errorf("expected an artist search, got type=%s", r.URL.Query().Get("type"))
			}
			if r.Header.Get("Authorization") != "Bearer app-token" {
				t.Error("expected the app token on a catalog search")
			}
			json.NewEncoder(w).Encode(map[string]any{
				"artists": map[string]any{
					"items": []map[string]any{
						{"id": "art1", "name": "The Strokes", "uri": "spotify:artist:art1"},
						{"id": "art2", "name": "The Stroke Unit"},
					},
					"total": 2,
				},
			})
		})
		s := newTestSpotify(t, mux)

		artists, err := s.SearchArtists(context.Background(), "the strokes")
		if err != nil {
			t.Fatalf("failed to search: %v", err)
		}
		if len(artists) != 2 {
			t.Fatalf("expected 2 artists, got %d", len(artists))
		}
		if artists[0].Name != "The Strokes" {
			t.Errorf("expected The Strokes first, got %s", artists[0].Name)
		}
	})

	t.Run("Empty Query", func(t *testing.T) {
		s := newTestSpotify(t, http.NewServeMux())

		_, err := s.SearchArtists(context.Background(), "   ")
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("API Error", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /search", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
		s := newTestSpotify(t, mux)

		_, err := s.SearchArtists(context.Background(), "the strokes")
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})
}

func TestSearchTrack(t *testing.T) {
	t.Run("Best Match", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /search", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"tracks": map[string]any{
					"items": []map[string]any{
						{"id": "trk1", "name": "Reptilia", "uri": "spotify:track:trk1", "duration_ms": 219000},
					},
					"total": 1,
				},
			})
		})
		s := newTestSpotify(t, mux)

		track, err := s.SearchTrack(context.Background(), "Reptilia", "The Strokes")
		if err != nil {
			t.Fatalf("failed to search: %v", err)
		}
		if track.URI != "spotify:track:trk1" {
			t.Errorf("expected the first item back, got %s", track.URI)
		}
	})

	t.Run("No Match", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /search", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"tracks": map[string]any{"items": []map[string]any{}, "total": 0},
			})
		})
		s := newTestSpotify(t, mux)

		_, err := s.SearchTrack(context.Background(), "Unreleased Demo", "Nobody")
		if !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected ErrTrackNotFound, got %v", err)
		}
	})
}

func TestArtistTopTracks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /artists/{id}/top-tracks", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "art1" {
			t.Errorf("expected artist art1, got %s", r.PathValue("id"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"tracks": []map[string]any{
				{"id": "trk1", "name": "Reptilia"},
				{"id": "trk2", "name": "Last Nite"},
			},
		})
	})
	s := newTestSpotify(t, mux)

	tracks, err := s.ArtistTopTracks(context.Background(), "art1")
	if err != nil {
		t.Fatalf("failed to fetch top tracks: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(tracks))
	}
}

func TestUserProfile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer user-token" {
			t.Error("expected the user token on a profile read")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":           "spotify-user",
			"display_name": "Alice",
		})
	})
	s := newTestSpotify(t, mux)

	profile, err := s.UserProfile(context.Background(), "user-token")
	if err != nil {
		t.Fatalf("failed to fetch profile: %v", err)
	}
	if profile.ID != "spotify-user" {
		t.Errorf("expected spotify-user, got %s", profile.ID)
	}
}

func TestCreatePlaylist(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /users/{id}/playlists", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if body["public"] != false {
			t.Error("expected playlists to be created private")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":   "pl1",
			"name": body["name"],
			"external_urls": map[string]any{
				"spotify": "https://open.spotify.com/playlist/pl1",
			},
		})
	})
	s := newTestSpotify(t, mux)

	playlist, err := s.CreatePlaylist(context.Background(), "user-token", "spotify-user", "The Strokes Live", "")
	if err != nil {
		t.Fatalf("failed to create playlist: %v", err)
	}
	if playlist.ID != "pl1" {
		t.Errorf("expected pl1, got %s", playlist.ID)
	}
	if playlist.ExternalURL.Spotify == "" {
		t.Error("expected an external URL")
	}
}

func TestAddTracks(t *testing.T) {
	t.Run("Chunks At API Limit", func(t *testing.T) {
		var batches []int
		mux := http.NewServeMux()
		mux.HandleFunc("POST /playlists/{id}/tracks", func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				URIs []string `json:"uris"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			batches = append(batches, len(body.URIs))
			w.WriteHeader(http.StatusCreated)
		})
		s := newTestSpotify(t, mux)

		uris := make([]string, 250)
		for i := range uris {
			uris[i] = fmt.Sprintf("spotify:track:%d", i)
		}

		if err := s.AddTracks(context.Background(), "user-token", "pl1", uris); err != nil {
			t.Fatalf("failed to add tracks: %v", err)
		}
		if len(batches) != 3 {
			t.Fatalf("expected 3 batches, got %d", len(batches))
		}
		if batches[0] != 100 || batches[1] != 100 || batches[2] != 50 {
			t.Errorf("expected batches of 100/100/50, got %v", batches)
		}
	})

	t.Run("No Tracks", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /playlists/{id}/tracks", func(w http.ResponseWriter, r *http.Request) {
			t.Error("expected no request for an empty list")
		})
		s := newTestSpotify(t, mux)

		if err := s.AddTracks(context.Background(), "user-token", "pl1", nil); err != nil {
			t.Fatalf("expected no error for an empty list, got %v", err)
		}
	})
}

func TestSpotifyArtistImage(t *testing.T) {
	artist := SpotifyArtist{Images: []SpotifyImage{{URL: "https://img/a.jpg"}, {URL: "https://img/b.jpg"}}}
	if artist.Image() != "https://img/a.jpg" {
		t.Errorf("expected the primary image, got %s", artist.Image())
	}
	if (SpotifyArtist{}).Image() != "" {
		t.Error("expected empty string when no images exist")
	}
}
