package auth

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/setplaylist/setplaylist/internal/models"
	"github.com/setplaylist/setplaylist/internal/repositories"
	"github.com/setplaylist/setplaylist/internal/shared"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// CredentialStore owns user records and every credential check against them.
//
// Passwords and recovery answers are hashed with bcrypt before storage.
// Authentication mismatches are expected outcomes and reported as absent
// results, never as errors.
type CredentialStore struct {
	users  *repositories.UserRepository
	logger *log.Logger

	// per-username throttles for the recovery-answer flow; the single
	// low-entropy secret makes unthrottled guessing too cheap
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewCredentialStore creates a CredentialStore backed by the given repository.
func NewCredentialStore(users *repositories.UserRepository, logger *log.Logger) *CredentialStore {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &CredentialStore{
		users:    users,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Register creates a new account, hashing the password and recovery answer.
//
// Duplicate usernames surface as [shared.ErrDuplicateUsername], detected by
// the storage uniqueness constraint rather than a pre-check.
func (s *CredentialStore) Register(username, password, email, recoveryQuestion, recoveryAnswer string) (*models.User, error) {
	if username == "" || password == "" || email == "" {
		return nil, fmt.Errorf("%w: username, password and email are required", shared.ErrInvalidInput)
	}
	if recoveryQuestion == "" || recoveryAnswer == "" {
		return nil, fmt.Errorf("%w: recovery question and answer are required", shared.ErrInvalidInput)
	}

	passwordHash, err := hashSecret(password)
	if err != nil {
		return nil, err
	}
	answerHash, err := hashSecret(recoveryAnswer)
	if err != nil {
		return nil, err
	}

	user := models.NewUser(0, username, email, recoveryQuestion)
	user.SetPasswordHash(passwordHash)
	user.SetRecoveryAnswerHash(answerHash)

	if err := s.users.Create(user); err != nil {
		return nil, err
	}

	s.logger.Info("registered user", "username", user.Username())
	return user, nil
}

// Authenticate verifies a username/password pair.
//
// Returns (nil, nil) when the username is unknown or the password does not
// match; the two cases are indistinguishable to the caller.
func (s *CredentialStore) Authenticate(username, password string) (*models.User, error) {
	user, err := s.users.GetByUsername(username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}

	if !compareSecret(user.PasswordHash(), password) {
		return nil, nil
	}

	return user, nil
}

// AuthenticateRecoveryAnswer verifies a recovery answer for the named user.
//
// Attempts are throttled per username; once the budget is spent the caller
// gets [shared.ErrTooManyAttempts] regardless of whether the answer is right.
func (s *CredentialStore) AuthenticateRecoveryAnswer(username, answer string) (bool, error) {
	if !s.limiter(username).Allow() {
		return false, fmt.Errorf("%w: recovery attempts for %s", shared.ErrTooManyAttempts, username)
	}

	user, err := s.users.GetByUsername(username)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, nil
	}

	return compareSecret(user.RecoveryAnswerHash(), answer), nil
}

// ResetPassword re-hashes and overwrites the user's password. No other state
// is touched.
func (s *CredentialStore) ResetPassword(user *models.User, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("%w: password is required", shared.ErrInvalidInput)
	}

	hash, err := hashSecret(newPassword)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePassword(user.ID(), hash); err != nil {
		return err
	}

	user.SetPasswordHash(hash)
	s.logger.Info("password reset", "username", user.Username())
	return nil
}

// UpdateProfile applies account-settings changes. Blank newPassword or
// newRecoveryAnswer keep the current secret; non-blank values are re-hashed.
func (s *CredentialStore) UpdateProfile(user *models.User, email, recoveryQuestion, newPassword, newRecoveryAnswer string) error {
	if email == "" || recoveryQuestion == "" {
		return fmt.Errorf("%w: email and recovery question are required", shared.ErrInvalidInput)
	}

	user.SetEmail(email)
	user.SetRecoveryQuestion(recoveryQuestion)

	if newPassword != "" {
		hash, err := hashSecret(newPassword)
		if err != nil {
			return err
		}
		user.SetPasswordHash(hash)
	}
	if newRecoveryAnswer != "" {
		hash, err := hashSecret(newRecoveryAnswer)
		if err != nil {
			return err
		}
		user.SetRecoveryAnswerHash(hash)
	}

	return s.users.Update(user)
}

// SetRefreshToken overwrites the user's stored provider refresh token.
// Called by the broker on link completion and by the refresh coordinator when
// the provider rotates the token.
func (s *CredentialStore) SetRefreshToken(user *models.User, token string) error {
	if err := s.users.SetRefreshToken(user.ID(), token); err != nil {
		return err
	}
	user.SetRefreshToken(token)
	return nil
}

// Get retrieves a user by ID.
func (s *CredentialStore) Get(id string) (*models.User, error) {
	return s.users.Get(id)
}

// GetByUsername retrieves a user by username, (nil, nil) when absent.
func (s *CredentialStore) GetByUsername(username string) (*models.User, error) {
	return s.users.GetByUsername(username)
}

// limiter returns the recovery-attempt limiter for a username, creating it on
// first use. Three attempts, then one more every thirty seconds.
func (s *CredentialStore) limiter(username string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[username]
	if !ok {
		l = rate.NewLimiter(rate.Every(30*time.Second), 3)
		s.limiters[username] = l
	}
	return l
}

func hashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hash), nil
}

func compareSecret(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
