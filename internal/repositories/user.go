package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/setplaylist/setplaylist/internal/models"
	"github.com/setplaylist/setplaylist/internal/shared"
)

// UserRepository implements [models.Repository] for [models.User] persistence.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new [UserRepository] with the given database connection
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
//
// Username uniqueness is enforced here, at the storage layer, rather than by a
// lookup-then-insert in application code: two concurrent registrations with
// the same username race, and only the constraint can guarantee one winner.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// Create inserts a new user into the database with generated ID and sequence.
//
// Returns [shared.ErrDuplicateUsername] when the username is already taken.
func (r *UserRepository) Create(user *models.User) error {
	sequence, err := NextSequence(r.db, "users")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	user.SetID(id)

	if err := user.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO users (id, sequence, username, password_hash, email, recovery_question, recovery_answer_hash, spotify_refresh_token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		id,
		sequence,
		user.Username(),
		user.PasswordHash(),
		user.Email(),
		user.RecoveryQuestion(),
		user.RecoveryAnswerHash(),
		nullableString(user.RefreshToken()),
		user.CreatedAt(),
		user.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", shared.ErrDuplicateUsername, user.Username())
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// Get retrieves a user by ID, excluding soft-deleted users
func (r *UserRepository) Get(id string) (*models.User, error) {
	query := userSelect + " WHERE id = ? AND deleted_at IS NULL"
	return r.scanOne(r.db.QueryRow(query, id), id)
}

// GetByUsername retrieves a user by username, excluding soft-deleted users.
//
// Returns (nil, nil) when no such user exists: an unknown username is an
// expected outcome for login and recovery flows, not a fault.
func (r *UserRepository) GetByUsername(username string) (*models.User, error) {
	query := userSelect + " WHERE username = ? AND deleted_at IS NULL"
	user, err := r.scanOne(r.db.QueryRow(query, username), "")
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Update modifies an existing user's profile fields in the database.
//
// Returns [shared.ErrDuplicateUsername] when a username change collides with
// an existing account.
func (r *UserRepository) Update(user *models.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	user.SetUpdatedAt(now)

	query := `
		UPDATE users
		SET username = ?, email = ?, recovery_question = ?, recovery_answer_hash = ?, password_hash = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		user.Username(),
		user.Email(),
		user.RecoveryQuestion(),
		user.RecoveryAnswerHash(),
		user.PasswordHash(),
		now,
		user.ID(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", shared.ErrDuplicateUsername, user.Username())
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrUserNotFound, user.ID())
	}

	return nil
}

// UpdatePassword overwrites only the stored password hash.
func (r *UserRepository) UpdatePassword(id, passwordHash string) error {
	query := `
		UPDATE users
		SET password_hash = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, passwordHash, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrUserNotFound, id)
	}

	return nil
}

// SetRefreshToken overwrites the stored provider refresh token.
//
// A single UPDATE statement, so the token is replaced whole or not at all.
func (r *UserRepository) SetRefreshToken(id, token string) error {
	query := `
		UPDATE users
		SET spotify_refresh_token = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, nullableString(token), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set refresh token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrUserNotFound, id)
	}

	return nil
}

// Delete soft-deletes a user by ID
func (r *UserRepository) Delete(id string) error {
	now := time.Now()

	query := `
		UPDATE users
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, now, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrUserNotFound, id)
	}

	return nil
}

// List retrieves all users matching the given criteria, excluding soft-deleted users
func (r *UserRepository) List(criteria map[string]any) ([]*models.User, error) {
	query := userSelect + " WHERE deleted_at IS NULL"
	args := []any{}

	if email, ok := criteria["email"].(string); ok && email != "" {
		query += " AND email = ?"
		args = append(args, email)
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return users, nil
}

const userSelect = `
	SELECT id, sequence, username, password_hash, email, recovery_question, recovery_answer_hash, spotify_refresh_token, created_at, updated_at, deleted_at
	FROM users`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanOne scans a single user row. When notFound is empty a missing row is
// reported as (nil, nil) instead of an error.
func (r *UserRepository) scanOne(row *sql.Row, notFound string) (*models.User, error) {
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		if notFound == "" {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s", shared.ErrUserNotFound, notFound)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		id           string
		sequence     int
		username     string
		passwordHash string
		email        string
		question     string
		answerHash   string
		refreshToken sql.NullString
		createdAt    time.Time
		updatedAt    time.Time
		deletedAt    sql.NullTime
	)

	err := row.Scan(&id, &sequence, &username, &passwordHash, &email, &question, &answerHash, &refreshToken, &createdAt, &updatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	user := models.NewUser(sequence, username, email, question)
	user.SetID(id)
	user.SetPasswordHash(passwordHash)
	user.SetRecoveryAnswerHash(answerHash)
	if refreshToken.Valid {
		user.SetRefreshToken(refreshToken.String)
	}
	user.SetCreatedAt(createdAt)
	user.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		user.SetDeletedAt(&deletedAt.Time)
	}

	return user, nil
}

// nullableString maps "" to NULL for nullable text columns.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
