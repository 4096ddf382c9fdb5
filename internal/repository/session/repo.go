package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/papernest/internal/db"
	"github.com/kailas-cloud/papernest/internal/domain"
)

const keyPrefix = domain.KeyPrefix + "session:"

// store is the consumer interface for sessions (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Repo keeps sessions in redis with a fixed lifetime.
type Repo struct {
	store store
	ttl   time.Duration
	now   func() time.Time
	newID func() string
}

// New creates a session repository.
func New(s store, ttl time.Duration) *Repo {
	return &Repo{
		store: s,
		ttl:   ttl,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// Create opens a session for userID.
func (r *Repo) Create(ctx context.Context, userID int64) (domain.Session, error) {
	now := r.now().UTC()
	s := domain.Session{
		ID:        r.newID(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}

	data, err := marshalSession(s)
	if err != nil {
		return domain.Session{}, err
	}
	if err := r.store.SetWithTTL(ctx, key(s.ID), data, r.ttl); err != nil {
		return domain.Session{}, fmt.Errorf("store session: %w", err)
	}
	return s, nil
}

// Get returns a live session. Unknown, expired or malformed IDs give domain.ErrNotFound.
func (r *Repo) Get(ctx context.Context, id string) (domain.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Session{}, domain.ErrNotFound
	}

	data, err := r.store.Get(ctx, key(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.Session{}, domain.ErrNotFound
		}
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	return unmarshalSession(id, data)
}

// Delete ends a session. Deleting an unknown session is a no-op.
func (r *Repo) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}
	if err := r.store.Del(ctx, key(id)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func key(id string) string { return keyPrefix + id }
