package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"homecare-ai/internal/cache"
	"homecare-ai/internal/config"
	"homecare-ai/internal/model"
	"homecare-ai/internal/pkg/jwtutil"
	"homecare-ai/internal/repository"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidCredential = errors.New("invalid username or password")
	ErrSessionExpired    = errors.New("session expired or revoked")
)

// Authenticator decides whether a username and secret identify a caregiver.
type Authenticator interface {
	Authenticate(ctx context.Context, username, secret string) (bool, error)
}

// UserAuthenticator checks credentials against bcrypt hashes in the users table.
type UserAuthenticator struct {
	users *repository.UserRepository
}

func NewUserAuthenticator(users *repository.UserRepository) *UserAuthenticator {
	return &UserAuthenticator{users: users}
}

// Seed provisions the configured accounts. Re-running it updates password hashes.
func (a *UserAuthenticator) Seed(ctx context.Context, seeds []config.SeedUser) error {
	for _, seed := range seeds {
		username := strings.TrimSpace(seed.Username)
		if username == "" {
			return fmt.Errorf("seed user: %w: empty username", ErrInvalidInput)
		}
		if _, err := bcrypt.Cost([]byte(seed.PasswordHash)); err != nil {
			return fmt.Errorf("seed user %s: password_hash is not a bcrypt hash: %w", username, err)
		}
		if err := a.users.Upsert(ctx, &model.User{Username: username, PasswordHash: seed.PasswordHash}); err != nil {
			return err
		}
	}
	return nil
}

// dummyHash keeps the cost of a failed lookup close to that of a wrong password.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("homecare-dummy-password"), bcrypt.DefaultCost)

func (a *UserAuthenticator) Authenticate(ctx context.Context, username, secret string) (bool, error) {
	user, err := a.users.GetByUsername(ctx, username)
	if err != nil {
		return false, err
	}
	if user == nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(secret))
		return false, nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(secret)); err != nil {
		return false, nil
	}
	return true, nil
}

type AuthService struct {
	authenticator Authenticator
	sessions      cache.SessionStore
	jwtSecret     string
	jwtExpiration time.Duration
}

type LoginInput struct {
	Username string
	Password string
}

type AuthResult struct {
	Token     string
	Username  string
	ExpiresAt time.Time
}

func NewAuthService(authenticator Authenticator, sessions cache.SessionStore, jwtSecret string, jwtExpiration time.Duration) *AuthService {
	return &AuthService{
		authenticator: authenticator,
		sessions:      sessions,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
	}
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	username := strings.TrimSpace(input.Username)
	password := strings.TrimSpace(input.Password)
	if username == "" || password == "" {
		return nil, ErrInvalidInput
	}

	ok, err := s.authenticator.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredential
	}

	token, claims, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, username)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, claims.ID, username, s.jwtExpiration); err != nil {
		return nil, fmt.Errorf("create session failed: %w", err)
	}
	return &AuthResult{Token: token, Username: username, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify resolves a bearer token to the session it was issued for.
func (s *AuthService) Verify(ctx context.Context, token string) (Session, string, error) {
	claims, err := jwtutil.ParseToken(s.jwtSecret, token)
	if err != nil {
		return Session{}, "", ErrInvalidCredential
	}
	username, ok, err := s.sessions.Exists(ctx, claims.ID)
	if err != nil {
		return Session{}, "", err
	}
	if !ok || username != claims.Username {
		return Session{}, "", ErrSessionExpired
	}
	return Session{Username: username}, claims.ID, nil
}

func (s *AuthService) Logout(ctx context.Context, tokenID string) error {
	if tokenID == "" {
		return ErrInvalidInput
	}
	return s.sessions.Revoke(ctx, tokenID)
}
