package models

import (
	"fmt"
	"time"
)

// Playlist represents a Spotify playlist generated from a concert setlist.
type Playlist struct {
	id         string
	sequence   int
	userID     string
	spotifyID  string
	name       string
	artistName string
	venue      string
	eventDate  string
	setlistID  string
	songs      []PlaylistSong
	createdAt  time.Time
	updatedAt  time.Time
	deletedAt  *time.Time
}

// PlaylistSong is a single entry in a generated playlist.
//
// SpotifyTrackID is empty when the setlist song could not be matched to a
// Spotify track; the song is still recorded so the "not included" list can be
// shown alongside the playlist.
type PlaylistSong struct {
	Position       int
	Title          string
	SpotifyTrackID string
}

// NewPlaylist creates a Playlist owned by the given user.
func NewPlaylist(sequence int, userID, spotifyID, name string) *Playlist {
	now := time.Now()
	return &Playlist{
		sequence:  sequence,
		userID:    userID,
		spotifyID: spotifyID,
		name:      name,
		createdAt: now,
		updatedAt: now,
	}
}

func (p *Playlist) ID() string            { return p.id }
func (p *Playlist) Sequence() int         { return p.sequence }
func (p *Playlist) UserID() string        { return p.userID }
func (p *Playlist) SpotifyID() string     { return p.spotifyID }
func (p *Playlist) Name() string          { return p.name }
func (p *Playlist) ArtistName() string    { return p.artistName }
func (p *Playlist) Venue() string         { return p.venue }
func (p *Playlist) EventDate() string     { return p.eventDate }
func (p *Playlist) SetlistID() string     { return p.setlistID }
func (p *Playlist) Songs() []PlaylistSong { return p.songs }
func (p *Playlist) CreatedAt() time.Time  { return p.createdAt }
func (p *Playlist) UpdatedAt() time.Time  { return p.updatedAt }
func (p *Playlist) DeletedAt() *time.Time { return p.deletedAt }

func (p *Playlist) SetID(id string)               { p.id = id }
func (p *Playlist) SetArtistName(name string)     { p.artistName = name }
func (p *Playlist) SetVenue(venue string)         { p.venue = venue }
func (p *Playlist) SetEventDate(date string)      { p.eventDate = date }
func (p *Playlist) SetSetlistID(id string)        { p.setlistID = id }
func (p *Playlist) SetSongs(songs []PlaylistSong) { p.songs = songs }
func (p *Playlist) SetCreatedAt(t time.Time)      { p.createdAt = t }
func (p *Playlist) SetUpdatedAt(t time.Time)      { p.updatedAt = t }
func (p *Playlist) SetDeletedAt(t *time.Time)     { p.deletedAt = t }

// Included returns the songs that were matched to Spotify tracks.
func (p *Playlist) Included() []PlaylistSong {
	var included []PlaylistSong
	for _, s := range p.songs {
		if s.SpotifyTrackID != "" {
			included = append(included, s)
		}
	}
	return included
}

// NotIncluded returns the setlist songs that could not be matched.
func (p *Playlist) NotIncluded() []PlaylistSong {
	var missed []PlaylistSong
	for _, s := range p.songs {
		if s.SpotifyTrackID == "" {
			missed = append(missed, s)
		}
	}
	return missed
}

// Validate checks that the playlist has the fields required for persistence.
func (p *Playlist) Validate() error {
	if p.userID == "" {
		return fmt.Errorf("user id is required")
	}
	if p.spotifyID == "" {
		return fmt.Errorf("spotify playlist id is required")
	}
	if p.name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}
