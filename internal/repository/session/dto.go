package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kailas-cloud/papernest/internal/domain"
)

// sessionRow is the JSON value stored under the session key.
type sessionRow struct {
	UserID    int64 `json:"user_id"`
	CreatedAt int64 `json:"created_at"`
	ExpiresAt int64 `json:"expires_at"`
}

func marshalSession(s domain.Session) ([]byte, error) {
	data, err := json.Marshal(sessionRow{
		UserID:    s.UserID,
		CreatedAt: s.CreatedAt.Unix(),
		ExpiresAt: s.ExpiresAt.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	return data, nil
}

func unmarshalSession(id string, data []byte) (domain.Session, error) {
	var row sessionRow
	if err := json.Unmarshal(data, &row); err != nil {
		return domain.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return domain.Session{
		ID:        id,
		UserID:    row.UserID,
		CreatedAt: time.Unix(row.CreatedAt, 0).UTC(),
		ExpiresAt: time.Unix(row.ExpiresAt, 0).UTC(),
	}, nil
}
