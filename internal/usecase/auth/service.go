package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/kailas-cloud/papernest/internal/domain"
)

// maxPasswordBytes is the bcrypt input limit.
const maxPasswordBytes = 72

// Service handles registration, login and session lookup.
type Service struct {
	users    UserRepository
	sessions SessionRepository
	cost     int
	logger   *zap.Logger
}

// New creates an auth service.
func New(users UserRepository, sessions SessionRepository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{users: users, sessions: sessions, cost: bcrypt.DefaultCost, logger: logger}
}

// Register creates an account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, email, username, password string) (domain.User, error) {
	email = strings.TrimSpace(email)
	username = strings.TrimSpace(username)
	if email == "" || username == "" {
		return domain.User{}, fmt.Errorf("%w: email and username are required", domain.ErrValidation)
	}
	if password == "" {
		return domain.User{}, fmt.Errorf("%w: password is required", domain.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(truncatePassword(password)), s.cost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	u := domain.User{Email: email, Username: username, HashedPassword: string(hash)}
	if err := s.users.Create(ctx, &u); err != nil {
		return domain.User{}, fmt.Errorf("register: %w", err)
	}

	s.logger.Info("User registered", zap.Int64("user_id", u.ID), zap.String("username", u.Username))
	return u, nil
}

// Login checks credentials and opens a session.
// Unknown users and wrong passwords both give domain.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (domain.Session, domain.User, error) {
	u, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Session{}, domain.User{}, domain.ErrInvalidCredentials
		}
		return domain.Session{}, domain.User{}, fmt.Errorf("login: %w", err)
	}

	err = bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(truncatePassword(password)))
	if err != nil {
		return domain.Session{}, domain.User{}, domain.ErrInvalidCredentials
	}

	sess, err := s.sessions.Create(ctx, u.ID)
	if err != nil {
		return domain.Session{}, domain.User{}, fmt.Errorf("login: %w", err)
	}
	return sess, u, nil
}

// Logout ends a session.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Authenticate resolves a session ID to its user.
// A missing or expired session gives domain.ErrUnauthorized.
func (s *Service) Authenticate(ctx context.Context, sessionID string) (domain.User, error) {
	if sessionID == "" {
		return domain.User{}, domain.ErrUnauthorized
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, domain.ErrUnauthorized
		}
		return domain.User{}, fmt.Errorf("authenticate: %w", err)
	}

	u, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Пользователь удалён, а сессия ещё жива.
			return domain.User{}, domain.ErrUnauthorized
		}
		return domain.User{}, fmt.Errorf("authenticate: %w", err)
	}
	return u, nil
}

// truncatePassword cuts p to at most 72 bytes without splitting a rune.
func truncatePassword(p string) string {
	if len(p) <= maxPasswordBytes {
		return p
	}
	end := 0
	for i, r := range p {
		size := utf8.RuneLen(r)
		if size < 0 {
			size = 1
		}
		if i+size > maxPasswordBytes {
			break
		}
		end = i + size
	}
	return p[:end]
}
