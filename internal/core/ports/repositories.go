package ports

import (
	"context"

	"github.com/samirrijal/pharmacover/internal/core/domain"
)

// SearchRepository persists search history records.
type SearchRepository interface {
	Create(ctx context.Context, rec *domain.SearchRecord) error
	GetByID(ctx context.Context, id string) (*domain.SearchRecord, error)
	// List returns records without places, newest first. An empty userID lists all users.
	List(ctx context.Context, userID string, offset, limit int) ([]domain.SearchRecord, int, error)
	NameExists(ctx context.Context, userID, name string) (bool, error)
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) error
	SumRequests(ctx context.Context) (int, error)
}

// UserRepository persists accounts and their credit balances.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	// UpsertAdmin creates or refreshes the configured administrator account.
	UpsertAdmin(ctx context.Context, username, passwordHash string) error
	Get(ctx context.Context, username string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Delete(ctx context.Context, username string) error
	SetCredits(ctx context.Context, username string, credits int) error
	// DeductCredits returns ErrInsufficientCredits when the balance is below n.
	DeductCredits(ctx context.Context, username string, n int) error
	AddRequests(ctx context.Context, username string, n int) error
}
