package chi

import (
	"context"

	"github.com/kailas-cloud/papernest/internal/domain"
	healthuc "github.com/kailas-cloud/papernest/internal/usecase/health"
	paperuc "github.com/kailas-cloud/papernest/internal/usecase/paper"
	"github.com/kailas-cloud/papernest/internal/usecase/retrieval"
)

// AuthService registers users and resolves sessions.
type AuthService interface {
	Register(ctx context.Context, email, username, password string) (domain.User, error)
	Login(ctx context.Context, username, password string) (domain.Session, domain.User, error)
	Logout(ctx context.Context, sessionID string) error
	Authenticate(ctx context.Context, sessionID string) (domain.User, error)
}

// PaperService manages papers and runs retrieval over their text.
type PaperService interface {
	Create(ctx context.Context, ownerID int64, p domain.Paper) (domain.Paper, error)
	List(ctx context.Context, ownerID int64, skip, limit int) ([]domain.Paper, error)
	Get(ctx context.Context, ownerID, id int64) (domain.Paper, error)
	Update(ctx context.Context, ownerID, id int64, patch domain.PaperPatch) (domain.Paper, error)
	Delete(ctx context.Context, ownerID, id int64) error
	UploadText(ctx context.Context, ownerID, id int64, filename string, data []byte) (domain.Paper, error)
	Summarize(ctx context.Context, ownerID, id int64) (domain.Paper, error)
	Chat(ctx context.Context, ownerID, id int64, query string, topK int) (paperuc.ChatAnswer, error)
	Context(ctx context.Context, ownerID, id int64, query string, topK int) (retrieval.Result, error)
}

// HealthService reports dependency health.
type HealthService interface {
	Check(ctx context.Context) healthuc.Report
}
