package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/samirrijal/pharmacover/internal/core/domain"
	"github.com/samirrijal/pharmacover/internal/core/ports"
)

// reservedUsername can never be registered, whatever the configured admin name is.
const reservedUsername = "admin"

// UserConfig configures account handling.
type UserConfig struct {
	AdminUser         string
	AdminPasswordHash string
	InitialCredits    int
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// UserService handles accounts, authentication and credit balances.
type UserService struct {
	users    ports.UserRepository
	searches ports.SearchRepository
	cfg      UserConfig
}

// NewUserService creates a new UserService.
func NewUserService(users ports.UserRepository, searches ports.SearchRepository, cfg UserConfig) *UserService {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.AdminUser == "" {
		cfg.AdminUser = reservedUsername
	}
	return &UserService{users: users, searches: searches, cfg: cfg}
}

// EnsureAdmin provisions the configured administrator. Without a password hash
// the admin account cannot log in and nothing is written.
func (s *UserService) EnsureAdmin(ctx context.Context) error {
	if s.cfg.AdminPasswordHash == "" {
		slog.Warn("admin password hash not configured; admin login disabled", "admin", s.cfg.AdminUser)
		return nil
	}
	if _, err := bcrypt.Cost([]byte(s.cfg.AdminPasswordHash)); err != nil {
		return fmt.Errorf("admin password hash: %w", err)
	}
	if err := s.users.UpsertAdmin(ctx, s.cfg.AdminUser, s.cfg.AdminPasswordHash); err != nil {
		return fmt.Errorf("provision admin: %w", err)
	}
	return nil
}

// Authenticate checks a username and password pair.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*domain.Principal, error) {
	u, err := s.users.Get(ctx, username)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	return &domain.Principal{Username: u.Username, IsAdmin: u.IsAdmin}, nil
}

// CreateUser registers a non-admin account with the initial credit balance.
func (s *UserService) CreateUser(ctx context.Context, username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", domain.ErrInvalidArgument)
	}
	if strings.EqualFold(username, reservedUsername) || strings.EqualFold(username, s.cfg.AdminUser) {
		return nil, fmt.Errorf("%w: %q is reserved", domain.ErrUserExists, username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &domain.User{
		Username:     username,
		PasswordHash: string(hash),
		Credits:      s.cfg.InitialCredits,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	slog.Info("user created", "username", username, "credits", u.Credits)
	return u, nil
}

// DeleteUser removes an account and its search history.
func (s *UserService) DeleteUser(ctx context.Context, username string) error {
	if strings.EqualFold(username, s.cfg.AdminUser) {
		return fmt.Errorf("%w: the admin account cannot be deleted", domain.ErrForbidden)
	}
	if _, err := s.users.Get(ctx, username); err != nil {
		return err
	}
	if err := s.searches.DeleteByUser(ctx, username); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	if err := s.users.Delete(ctx, username); err != nil {
		return err
	}
	slog.Info("user deleted", "username", username)
	return nil
}

// GetUser returns an account.
func (s *UserService) GetUser(ctx context.Context, username string) (*domain.User, error) {
	return s.users.Get(ctx, username)
}

// ListUsers returns every account.
func (s *UserService) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.users.List(ctx)
}

// GetCredits returns the balance of username.
func (s *UserService) GetCredits(ctx context.Context, username string) (int, error) {
	u, err := s.users.Get(ctx, username)
	if err != nil {
		return 0, err
	}
	return u.Credits, nil
}

// SetCredits overwrites the balance of username.
func (s *UserService) SetCredits(ctx context.Context, username string, credits int) error {
	if credits < 0 {
		return fmt.Errorf("%w: credits must not be negative", domain.ErrInvalidArgument)
	}
	return s.users.SetCredits(ctx, username, credits)
}

// TotalRequests returns the upstream requests made by username, or by everyone
// over the saved history when username is empty.
func (s *UserService) TotalRequests(ctx context.Context, username string) (int, error) {
	if username == "" {
		return s.searches.SumRequests(ctx)
	}
	u, err := s.users.Get(ctx, username)
	if err != nil {
		return 0, err
	}
	return u.TotalRequests, nil
}
