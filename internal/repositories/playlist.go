package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/setplaylist/setplaylist/internal/models"
	"github.com/setplaylist/setplaylist/internal/shared"
)

// PlaylistRepository implements [models.Repository] for [models.Playlist]
// persistence, including the ordered song entries for each playlist.
type PlaylistRepository struct {
	db *sql.DB
}

// NewPlaylistRepository creates a new PlaylistRepository with the given database connection
func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// Create inserts a new playlist and its songs with generated ID and sequence.
func (r *PlaylistRepository) Create(playlist *models.Playlist) error {
	sequence, err := NextSequence(r.db, "playlists")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	playlist.SetID(id)

	if err := playlist.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO playlists (id, sequence, user_id, spotify_id, name, artist_name, venue, event_date, setlist_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.Exec(query,
		id,
		sequence,
		playlist.UserID(),
		playlist.SpotifyID(),
		playlist.Name(),
		playlist.ArtistName(),
		playlist.Venue(),
		playlist.EventDate(),
		playlist.SetlistID(),
		playlist.CreatedAt(),
		playlist.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert playlist: %w", err)
	}

	for _, song := range playlist.Songs() {
		_, err = tx.Exec(
			"INSERT INTO playlist_songs (playlist_id, position, title, spotify_track_id) VALUES (?, ?, ?, ?)",
			id, song.Position, song.Title, nullableString(song.SpotifyTrackID),
		)
		if err != nil {
			return fmt.Errorf("failed to insert playlist song: %w", err)
		}
	}

	return tx.Commit()
}

// Get retrieves a playlist with its songs by ID, excluding soft-deleted playlists
func (r *PlaylistRepository) Get(id string) (*models.Playlist, error) {
	query := playlistSelect + " WHERE id = ? AND deleted_at IS NULL"

	playlist, err := scanPlaylist(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	songs, err := r.songs(id)
	if err != nil {
		return nil, err
	}
	playlist.SetSongs(songs)

	return playlist, nil
}

// Update modifies an existing playlist's metadata in the database
func (r *PlaylistRepository) Update(playlist *models.Playlist) error {
	if err := playlist.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	playlist.SetUpdatedAt(now)

	query := `
		UPDATE playlists
		SET name = ?, artist_name = ?, venue = ?, event_date = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		playlist.Name(),
		playlist.ArtistName(),
		playlist.Venue(),
		playlist.EventDate(),
		now,
		playlist.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update playlist: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlist.ID())
	}

	return nil
}

// Delete soft-deletes a playlist by ID
func (r *PlaylistRepository) Delete(id string) error {
	now := time.Now()

	result, err := r.db.Exec("UPDATE playlists SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL", now, id)
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}

	return nil
}

// List retrieves playlists matching the given criteria, newest first,
// excluding soft-deleted playlists. Songs are not loaded; use Get for a full
// playlist.
func (r *PlaylistRepository) List(criteria map[string]any) ([]*models.Playlist, error) {
	query := playlistSelect + " WHERE deleted_at IS NULL"
	args := []any{}

	if userID, ok := criteria["user_id"].(string); ok && userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	defer rows.Close()

	var playlists []*models.Playlist
	for rows.Next() {
		playlist, err := scanPlaylist(rows)
		if err != nil {
			return nil, err
		}
		playlists = append(playlists, playlist)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return playlists, nil
}

// songs loads the ordered song entries for a playlist.
func (r *PlaylistRepository) songs(playlistID string) ([]models.PlaylistSong, error) {
	rows, err := r.db.Query(
		"SELECT position, title, spotify_track_id FROM playlist_songs WHERE playlist_id = ? ORDER BY position ASC",
		playlistID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist songs: %w", err)
	}
	defer rows.Close()

	var songs []models.PlaylistSong
	for rows.Next() {
		var (
			song    models.PlaylistSong
			trackID sql.NullString
		)
		if err := rows.Scan(&song.Position, &song.Title, &trackID); err != nil {
			return nil, fmt.Errorf("failed to scan playlist song: %w", err)
		}
		if trackID.Valid {
			song.SpotifyTrackID = trackID.String
		}
		songs = append(songs, song)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return songs, nil
}

const playlistSelect = `
	SELECT id, sequence, user_id, spotify_id, name, artist_name, venue, event_date, setlist_id, created_at, updated_at, deleted_at
	FROM playlists`

func scanPlaylist(row rowScanner) (*models.Playlist, error) {
	var (
		id         string
		sequence   int
		userID     string
		spotifyID  string
		name       string
		artistName string
		venue      string
		eventDate  string
		setlistID  string
		createdAt  time.Time
		updatedAt  time.Time
		deletedAt  sql.NullTime
	)

	err := row.Scan(&id, &sequence, &userID, &spotifyID, &name, &artistName, &venue, &eventDate, &setlistID, &createdAt, &updatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan playlist: %w", err)
	}

	playlist := models.NewPlaylist(sequence, userID, spotifyID, name)
	playlist.SetID(id)
	playlist.SetArtistName(artistName)
	playlist.SetVenue(venue)
	playlist.SetEventDate(eventDate)
	playlist.SetSetlistID(setlistID)
	playlist.SetCreatedAt(createdAt)
	playlist.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		playlist.SetDeletedAt(&deletedAt.Time)
	}

	return playlist, nil
}
