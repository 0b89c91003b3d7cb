package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/divvyhq/divvy/internal/auth"
	"github.com/divvyhq/divvy/internal/models"
	"github.com/divvyhq/divvy/internal/storage"
)

// AuthService registers and authenticates user accounts. Email uniqueness
// is enforced by a compare-and-swap on the email index entry, so two
// concurrent registrations for the same address cannot both commit.
type AuthService struct {
	store storage.Store
	jwt   *auth.JWTManager
}

// NewAuthService creates an AuthService.
func NewAuthService(store storage.Store, jwt *auth.JWTManager) *AuthService {
	return &AuthService{store: store, jwt: jwt}
}

// Register creates an account and returns it with a session token.
func (s *AuthService) Register(ctx context.Context, email, name, password string) (*models.User, string, error) {
	if email == "" {
		return nil, "", fmt.Errorf("email required")
	}
	if err := auth.ValidatePassword(password); err != nil {
		return nil, "", err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, "", err
	}
	user := models.NewUser(email, name, hash)

	doc, err := json.Marshal(user)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode user: %w", err)
	}
	err = s.store.AtomicMultiUpdate(ctx,
		[]storage.Write{
			{Path: storage.UserPath(user.ID), Value: doc},
			{Path: storage.UserEmailPath(email), Value: []byte(user.ID)},
		},
		[]storage.Precondition{{Path: storage.UserEmailPath(email), Value: nil}},
	)
	if errors.Is(err, storage.ErrConflict) {
		return nil, "", ErrEmailExists
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.jwt.Generate(user.ID, user.Email)
	if err != nil {
		return nil, "", err
	}
	slog.Info("user registered", "user_id", user.ID)
	return user, token, nil
}

// Login verifies credentials and returns the user with a session token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	userID, err := s.store.Get(ctx, storage.UserEmailPath(email))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to look up email: %w", err)
	}

	user, err := s.GetUser(ctx, string(userID))
	if err != nil {
		return nil, "", ErrInvalidCredentials
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.jwt.Generate(user.ID, user.Email)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// GetUser retrieves a user account by id.
func (s *AuthService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	raw, err := s.store.Get(ctx, storage.UserPath(userID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: user %s", ErrRecordNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	var user models.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("corrupt user %s: %w", userID, err)
	}
	return &user, nil
}
