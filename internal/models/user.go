package models

import (
	"fmt"
	"strings"
	"time"
)

// User represents a registered account.
//
// Password and recovery answer are stored only as one-way salted hashes. The
// Spotify refresh token is empty until the account completes the provider link
// flow, and is overwritten whole whenever the provider rotates it.
type User struct {
	id                 string
	sequence           int
	username           string
	passwordHash       string
	email              string
	recoveryQuestion   string
	recoveryAnswerHash string
	refreshToken       string
	createdAt          time.Time
	updatedAt          time.Time
	deletedAt          *time.Time
}

// NewUser creates a User with the given sequence and profile fields.
// Hashes are set separately; see SetPasswordHash and SetRecoveryAnswerHash.
func NewUser(sequence int, username, email, recoveryQuestion string) *User {
	now := time.Now()
	return &User{
		sequence:         sequence,
		username:         strings.TrimSpace(username),
		email:            strings.TrimSpace(email),
		recoveryQuestion: strings.TrimSpace(recoveryQuestion),
		createdAt:        now,
		updatedAt:        now,
	}
}

func (u *User) ID() string                 { return u.id }
func (u *User) Sequence() int              { return u.sequence }
func (u *User) Username() string           { return u.username }
func (u *User) PasswordHash() string       { return u.passwordHash }
func (u *User) Email() string              { return u.email }
func (u *User) RecoveryQuestion() string   { return u.recoveryQuestion }
func (u *User) RecoveryAnswerHash() string { return u.recoveryAnswerHash }
func (u *User) RefreshToken() string       { return u.refreshToken }
func (u *User) CreatedAt() time.Time       { return u.createdAt }
func (u *User) UpdatedAt() time.Time       { return u.updatedAt }
func (u *User) DeletedAt() *time.Time      { return u.deletedAt }

// Linked reports whether the account has a stored provider refresh token.
func (u *User) Linked() bool { return u.refreshToken != "" }

func (u *User) SetID(id string)                   { u.id = id }
func (u *User) SetUsername(username string)       { u.username = strings.TrimSpace(username) }
func (u *User) SetEmail(email string)             { u.email = strings.TrimSpace(email) }
func (u *User) SetRecoveryQuestion(q string)      { u.recoveryQuestion = strings.TrimSpace(q) }
func (u *User) SetPasswordHash(hash string)       { u.passwordHash = hash }
func (u *User) SetRecoveryAnswerHash(hash string) { u.recoveryAnswerHash = hash }
func (u *User) SetRefreshToken(token string)      { u.refreshToken = token }
func (u *User) SetCreatedAt(t time.Time)          { u.createdAt = t }
func (u *User) SetUpdatedAt(t time.Time)          { u.updatedAt = t }
func (u *User) SetDeletedAt(t *time.Time)         { u.deletedAt = t }

// Validate checks that the user has the fields required for persistence.
func (u *User) Validate() error {
	if u.username == "" {
		return fmt.Errorf("username is required")
	}
	if u.passwordHash == "" {
		return fmt.Errorf("password hash is required")
	}
	if u.email == "" {
		return fmt.Errorf("email is required")
	}
	if u.recoveryQuestion == "" || u.recoveryAnswerHash == "" {
		return fmt.Errorf("recovery question and answer are required")
	}
	return nil
}
