package paper

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/papernest/internal/domain"
	"github.com/kailas-cloud/papernest/internal/usecase/retrieval"
)

// Defaults for listing and chat.
const (
	DefaultLimit = 100
	MaxLimit     = 100
	DefaultTopK  = 5
)

// Config holds paper service settings.
type Config struct {
	// SummaryInputLimit is how many leading runes of the paper are summarized.
	SummaryInputLimit int
	DefaultTopK       int
}

// ChatAnswer is a generated answer plus the chunks it was grounded on.
type ChatAnswer struct {
	Answer        string
	ContextChunks []string
}

// Service manages a user's papers and the operations on their text.
type Service struct {
	repo      Repository
	retriever Retriever
	generator domain.Generator
	extractor Extractor
	cfg       Config
	logger    *zap.Logger
}

// New creates a paper service. generator may be nil, in which case
// Summarize and Chat fail with domain.ErrConfiguration.
func New(
	repo Repository, retriever Retriever, generator domain.Generator, extractor Extractor,
	cfg Config, logger *zap.Logger,
) *Service {
	if cfg.SummaryInputLimit <= 0 {
		cfg.SummaryInputLimit = 25000
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultTopK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		retriever: retriever,
		generator: generator,
		extractor: extractor,
		cfg:       cfg,
		logger:    logger,
	}
}

// Create validates and stores a new paper for ownerID.
func (s *Service) Create(ctx context.Context, ownerID int64, p domain.Paper) (domain.Paper, error) {
	p.ID = 0
	p.OwnerID = ownerID
	p.Summary = ""
	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return domain.Paper{}, err
	}

	if err := s.repo.Create(ctx, &p); err != nil {
		return domain.Paper{}, fmt.Errorf("create paper: %w", err)
	}
	return p, nil
}

// List returns a page of the owner's papers. limit <= 0 means DefaultLimit.
func (s *Service) List(ctx context.Context, ownerID int64, skip, limit int) ([]domain.Paper, error) {
	if skip < 0 {
		return nil, fmt.Errorf("%w: skip must be >= 0", domain.ErrValidation)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		return nil, fmt.Errorf("%w: limit must be <= %d", domain.ErrValidation, MaxLimit)
	}

	papers, err := s.repo.List(ctx, ownerID, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	return papers, nil
}

// Get returns one paper.
func (s *Service) Get(ctx context.Context, ownerID, id int64) (domain.Paper, error) {
	p, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return domain.Paper{}, fmt.Errorf("get paper: %w", err)
	}
	return p, nil
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, ownerID, id int64, patch domain.PaperPatch) (domain.Paper, error) {
	p, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return domain.Paper{}, err
	}
	if patch.IsEmpty() {
		return p, nil
	}
	if err := patch.Apply(&p); err != nil {
		return domain.Paper{}, err
	}
	if err := s.repo.Update(ctx, &p); err != nil {
		return domain.Paper{}, fmt.Errorf("update paper: %w", err)
	}
	return p, nil
}

// Delete removes a paper.
func (s *Service) Delete(ctx context.Context, ownerID, id int64) error {
	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		return fmt.Errorf("delete paper: %w", err)
	}
	return nil
}

// UploadText extracts text from a PDF, DOCX or plain text file and stores it as the paper text.
func (s *Service) UploadText(ctx context.Context, ownerID, id int64, filename string, data []byte) (domain.Paper, error) {
	p, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return domain.Paper{}, err
	}

	res, err := s.extractor.Extract(filename, data)
	if err != nil {
		return domain.Paper{}, err
	}

	p.PaperText = res.Text
	if err := s.repo.Update(ctx, &p); err != nil {
		return domain.Paper{}, fmt.Errorf("store paper text: %w", err)
	}

	s.logger.Info("Paper text uploaded",
		zap.Int64("paper_id", p.ID),
		zap.String("format", string(res.Format)),
		zap.Int("pages", res.Pages),
		zap.Int("bytes", len(data)),
	)
	return p, nil
}

// Summarize generates and stores a summary of the paper text.
func (s *Service) Summarize(ctx context.Context, ownerID, id int64) (domain.Paper, error) {
	p, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return domain.Paper{}, err
	}
	if strings.TrimSpace(p.PaperText) == "" {
		return domain.Paper{}, domain.ErrNoPaperText
	}
	if s.generator == nil {
		return domain.Paper{}, fmt.Errorf("%w: generative service is not configured", domain.ErrConfiguration)
	}

	summary, err := s.generator.Generate(ctx, domain.GenerationRequest{
		Operation: "summarize",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: summaryPrompt(truncateRunes(p.PaperText, s.cfg.SummaryInputLimit))},
		},
	})
	if err != nil {
		return domain.Paper{}, err
	}

	p.Summary = summary
	if err := s.repo.Update(ctx, &p); err != nil {
		return domain.Paper{}, fmt.Errorf("store summary: %w", err)
	}
	return p, nil
}

// Chat answers query from the paper's most relevant chunks.
// topK <= 0 uses the configured default.
func (s *Service) Chat(ctx context.Context, ownerID, id int64, query string, topK int) (ChatAnswer, error) {
	p, res, err := s.retrieve(ctx, ownerID, id, query, topK)
	if err != nil {
		return ChatAnswer{}, err
	}
	if s.generator == nil {
		return ChatAnswer{}, fmt.Errorf("%w: generative service is not configured", domain.ErrConfiguration)
	}

	answer, err := s.generator.Generate(ctx, ChatRequest(res.Context, query))
	if err != nil {
		return ChatAnswer{}, err
	}

	s.logger.Debug("Chat answered",
		zap.Int64("paper_id", p.ID),
		zap.String("provider", res.Provider.String()),
		zap.Bool("fallback", res.Fallback),
		zap.Int("chunks", len(res.Chunks)),
	)
	return ChatAnswer{Answer: answer, ContextChunks: res.Texts()}, nil
}

// Context returns the ranked chunks and assembled context for query without generation.
func (s *Service) Context(ctx context.Context, ownerID, id int64, query string, topK int) (retrieval.Result, error) {
	_, res, err := s.retrieve(ctx, ownerID, id, query, topK)
	return res, err
}

func (s *Service) retrieve(
	ctx context.Context, ownerID, id int64, query string, topK int,
) (domain.Paper, retrieval.Result, error) {
	if strings.TrimSpace(query) == "" {
		return domain.Paper{}, retrieval.Result{}, fmt.Errorf("%w: query is required", domain.ErrValidation)
	}
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}

	p, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return domain.Paper{}, retrieval.Result{}, err
	}
	if strings.TrimSpace(p.PaperText) == "" {
		return domain.Paper{}, retrieval.Result{}, domain.ErrNoPaperText
	}

	res, err := s.retriever.Context(ctx, p.PaperText, query, topK)
	if err != nil {
		return domain.Paper{}, retrieval.Result{}, fmt.Errorf("retrieve context: %w", err)
	}
	return p, res, nil
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
