package domain

import "time"

// Session is an authenticated login. ID is an opaque random token.
type Session struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}
