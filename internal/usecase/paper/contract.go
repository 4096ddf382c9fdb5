package paper

import (
	"context"

	"github.com/kailas-cloud/papernest/internal/domain"
	"github.com/kailas-cloud/papernest/internal/extract"
	"github.com/kailas-cloud/papernest/internal/usecase/retrieval"
)

// Repository defines the storage contract for papers.
type Repository interface {
	Create(ctx context.Context, p *domain.Paper) error
	List(ctx context.Context, ownerID int64, skip, limit int) ([]domain.Paper, error)
	Get(ctx context.Context, ownerID, id int64) (domain.Paper, error)
	Update(ctx context.Context, p *domain.Paper) error
	Delete(ctx context.Context, ownerID, id int64) error
}

// Retriever builds grounded context from paper text.
type Retriever interface {
	Context(ctx context.Context, text, query string, topK int) (retrieval.Result, error)
}

// Extractor pulls text out of uploaded files.
type Extractor interface {
	Extract(filename string, data []byte) (extract.Result, error)
}
