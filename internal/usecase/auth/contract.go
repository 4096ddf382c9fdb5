package auth

import (
	"context"

	"github.com/kailas-cloud/papernest/internal/domain"
)

// UserRepository defines the storage contract for accounts.
type UserRepository interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id int64) (domain.User, error)
	GetByUsername(ctx context.Context, username string) (domain.User, error)
}

// SessionRepository defines the storage contract for sessions.
type SessionRepository interface {
	Create(ctx context.Context, userID int64) (domain.Session, error)
	Get(ctx context.Context, id string) (domain.Session, error)
	Delete(ctx context.Context, id string) error
}
