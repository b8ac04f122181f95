package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/pharmacover/internal/core/domain"
)

// UserRepo implements ports.UserRepository with pgx.
type UserRepo struct {
	db *DB
}

// NewUserRepo creates a new UserRepo.
func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO users (username, password_hash, credits, is_admin, total_requests)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, u.Username, u.PasswordHash, u.Credits, u.IsAdmin, u.TotalRequests).Scan(&u.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %q", domain.ErrUserExists, u.Username)
	}
	return err
}

func (r *UserRepo) UpsertAdmin(ctx context.Context, username, passwordHash string) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO users (username, password_hash, credits, is_admin)
		VALUES ($1, $2, 0, TRUE)
		ON CONFLICT (username) DO UPDATE
		SET password_hash = EXCLUDED.password_hash, is_admin = TRUE
	`, username, passwordHash)
	return err
}

func (r *UserRepo) Get(ctx context.Context, username string) (*domain.User, error) {
	var u domain.User
	err := r.db.Pool.QueryRow(ctx, `
		SELECT username, password_hash, credits, is_admin, total_requests, created_at
		FROM users WHERE username = $1
	`, username).Scan(&u.Username, &u.PasswordHash, &u.Credits, &u.IsAdmin, &u.TotalRequests, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) List(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT username, password_hash, credits, is_admin, total_requests, created_at
		FROM users ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.Username, &u.PasswordHash, &u.Credits, &u.IsAdmin, &u.TotalRequests, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Delete removes the user; searches cascade through the foreign key.
func (r *UserRepo) Delete(ctx context.Context, username string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM users WHERE username = $1`, username)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *UserRepo) SetCredits(ctx context.Context, username string, credits int) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE users SET credits = $2 WHERE username = $1`, username, credits)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeductCredits decrements atomically so concurrent searches cannot overdraw.
func (r *UserRepo) DeductCredits(ctx context.Context, username string, n int) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE users SET credits = credits - $2
		WHERE username = $1 AND credits >= $2
	`, username, n)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, username); err != nil {
			return err
		}
		return domain.ErrInsufficientCredits
	}
	return nil
}

// AddRequests adds n to the user's request counter.
func (r *UserRepo) AddRequests(ctx context.Context, username string, n int) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE users SET total_requests = total_requests + $2 WHERE username = $1
	`, username, n)
	return err
}
