package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kailas-cloud/papernest/internal/db/postgres"
	"github.com/kailas-cloud/papernest/internal/domain"
)

// querier is the consumer interface for the users table.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repo stores accounts in postgres.
type Repo struct {
	db querier
}

// New creates a user repository.
func New(db querier) *Repo {
	return &Repo{db: db}
}

const userColumns = `id, email, username, hashed_password, created_at`

// Create inserts u and fills its ID and CreatedAt.
// A taken email or username gives domain.ErrAlreadyExists.
func (r *Repo) Create(ctx context.Context, u *domain.User) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (email, username, hashed_password) VALUES ($1, $2, $3) RETURNING id, created_at`,
		u.Email, u.Username, u.HashedPassword,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if constraint, ok := postgres.IsUniqueViolation(err); ok {
			return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, conflictField(constraint))
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID returns the user with id.
func (r *Repo) GetByID(ctx context.Context, id int64) (domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByUsername returns the user with username.
func (r *Repo) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *Repo) getOne(ctx context.Context, query string, arg any) (domain.User, error) {
	var u domain.User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.Username, &u.HashedPassword, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func conflictField(constraint string) string {
	switch constraint {
	case "users_email_key":
		return "email already registered"
	case "users_username_key":
		return "username already taken"
	default:
		return "user already exists"
	}
}
