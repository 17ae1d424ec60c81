package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kardai/apiserver/internal/auth"
	"github.com/kardai/apiserver/internal/store"
	"github.com/kardai/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (types.User, error)
	FindByUsernameOrEmail(ctx context.Context, username, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
}

// TokenManager signs and verifies bearer tokens.
type TokenManager interface {
	Issue(subject string) (string, error)
	Verify(token string) (string, error)
}

// IdentityService encapsulates registration and authentication use-cases.
type IdentityService struct {
	repo   UserRepository
	tokens TokenManager
}

func NewIdentityService(repo UserRepository, tokens TokenManager) *IdentityService {
	return &IdentityService{repo: repo, tokens: tokens}
}

// Register creates a new identity. A username or email already in use yields
// ErrDuplicateIdentity and nothing is written.
func (s *IdentityService) Register(ctx context.Context, username, email, password string) (types.User, error) {
	username = normalizeUsername(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || strings.TrimSpace(password) == "" {
		return types.User{}, ErrInvalidInput
	}
	if len(password) > auth.MaxPasswordBytes {
		return types.User{}, ErrPasswordTooLong
	}

	if _, err := s.repo.FindByUsernameOrEmail(ctx, username, email); err == nil {
		return types.User{}, ErrDuplicateIdentity
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, fmt.Errorf("check identity: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return types.User{}, ErrPasswordTooLong
		}
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.Create(ctx, types.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		// The unique constraints close the race left open by the check above.
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, ErrDuplicateIdentity
		}
		return types.User{}, err
	}
	return user, nil
}

// Authenticate verifies the credentials and issues a bearer token. An unknown
// username and a wrong password both yield ErrInvalidCredentials.
func (s *IdentityService) Authenticate(ctx context.Context, username, password string) (types.User, string, error) {
	user, err := s.repo.GetByUsername(ctx, normalizeUsername(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, "", ErrInvalidCredentials
		}
		return types.User{}, "", err
	}
	if !auth.VerifyPassword(password, user.PasswordHash) {
		return types.User{}, "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.Username)
	if err != nil {
		return types.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// ResolveFromToken returns the identity named by a valid token.
func (s *IdentityService) ResolveFromToken(ctx context.Context, token string) (types.User, error) {
	username, err := s.tokens.Verify(token)
	if err != nil {
		return types.User{}, ErrUnauthenticated
	}

	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUnauthenticated
		}
		return types.User{}, err
	}
	return user, nil
}

// normalizeUsername is applied on every path that stores or looks up a
// username, so registration and login agree on identity.
func normalizeUsername(username string) string {
	return strings.TrimSpace(username)
}
