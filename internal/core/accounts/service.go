package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrBadCredentials is returned for any username/password mismatch. The
// caller must not distinguish unknown users from wrong passwords.
var ErrBadCredentials = errors.New("invalid username or password")

// Service handles account registration and password verification.
type Service struct {
	directory Directory
}

// NewService creates a new account service.
func NewService(directory Directory) *Service {
	return &Service{directory: directory}
}

// Register creates a new account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, username, displayName, password string) (*Account, error) {
	username = NormalizeUsername(username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if displayName == "" {
		displayName = username
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &Account{
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: hash,
	}
	if err := s.directory.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// VerifyPassword checks a username/password pair. Both the unknown-user
// and wrong-password cases collapse into ErrBadCredentials so responses
// cannot be used for account enumeration.
func (s *Service) VerifyPassword(ctx context.Context, username, password string) (*Account, error) {
	account, err := s.directory.FindByUsername(ctx, NormalizeUsername(username))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrBadCredentials
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if len(account.PasswordHash) == 0 {
		return nil, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(password)); err != nil {
		return nil, ErrBadCredentials
	}
	return account, nil
}

// NormalizeUsername lowercases and trims a username the same way on
// every code path that touches the directory.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
