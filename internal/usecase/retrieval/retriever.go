// Package retrieval ranks document chunks against a query and assembles
// the winners into a bounded context block.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/papernest/internal/domain"
	"github.com/kailas-cloud/papernest/internal/embedding/keyword"
	"github.com/kailas-cloud/papernest/internal/metrics"
	"github.com/kailas-cloud/papernest/internal/repository/embcache"
)

// EntryCache supplies chunked and encoded documents.
type EntryCache interface {
	GetOrCompute(ctx context.Context, doc domain.Document, provider domain.Provider) (*embcache.Entry, error)
	// Chunks returns the chunks of doc and the count before max_chunks,
	// without encoding or storing anything.
	Chunks(doc domain.Document) ([]domain.Chunk, int, error)
}

// Config holds retrieval defaults.
type Config struct {
	TopK             int
	MaxContextLength int // runes, <= 0 = unbounded
}

// ScoredChunk is a chunk with its relevance to the query.
type ScoredChunk struct {
	Chunk domain.Chunk
	Score float64
}

// Ranking is the ordered result of one retrieval.
type Ranking struct {
	Chunks   []ScoredChunk
	Provider domain.ProviderIdentity
	Fallback bool
	// Scored is the number of chunks that were scored.
	Scored int
	// TotalChunks counts the document's chunks before max_chunks applied.
	TotalChunks int
}

// Texts returns the chunk texts in rank order.
func (r Ranking) Texts() []string {
	out := make([]string, len(r.Chunks))
	for i, c := range r.Chunks {
		out[i] = c.Chunk.Text
	}
	return out
}

// Result is a ranking plus the context assembled from it.
type Result struct {
	Ranking
	Context string
}

// Retriever ranks chunks with the primary provider and falls back to
// keyword overlap when the primary cannot serve.
type Retriever struct {
	cache    EntryCache
	primary  domain.Provider
	fallback domain.Provider
	cfg      Config
	logger   *zap.Logger
}

// NewRetriever creates a retriever. A nil primary means keyword only.
func NewRetriever(cache EntryCache, primary domain.Provider, cfg Config, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	var fallback domain.Provider = keyword.New()
	if primary == nil {
		primary = fallback
	}
	if primary.Identity().Name == keyword.Name {
		fallback = nil
	}
	return &Retriever{cache: cache, primary: primary, fallback: fallback, cfg: cfg, logger: logger}
}

// Retrieve returns the texts of the topK chunks of text most relevant to query.
// Provider failures degrade to keyword ranking or an empty result; only the
// caller's context ending is reported as an error.
func (r *Retriever) Retrieve(ctx context.Context, text, query string, topK int) ([]string, error) {
	ranking, err := r.Rank(ctx, text, query, topK)
	if err != nil {
		return nil, err
	}
	return ranking.Texts(), nil
}

// RetrieveContext retrieves with the configured top_k and assembles the context block.
func (r *Retriever) RetrieveContext(ctx context.Context, text, query string) (string, error) {
	res, err := r.Context(ctx, text, query, r.cfg.TopK)
	if err != nil {
		return "", err
	}
	return res.Context, nil
}

// Context ranks with topK (the configured top_k when topK <= 0) and assembles
// the result within the configured max_context_length.
func (r *Retriever) Context(ctx context.Context, text, query string, topK int) (Result, error) {
	if topK <= 0 {
		topK = r.cfg.TopK
	}
	ranking, err := r.Rank(ctx, text, query, topK)
	if err != nil {
		return Result{}, err
	}
	return Result{Ranking: ranking, Context: Assemble(ranking.Texts(), r.cfg.MaxContextLength)}, nil
}

// Rank scores every chunk of text against query and returns the best topK.
// Ties keep document order.
func (r *Retriever) Rank(ctx context.Context, text, query string, topK int) (Ranking, error) {
	if strings.TrimSpace(text) == "" || strings.TrimSpace(query) == "" || topK <= 0 {
		metrics.RetrievalRequestsTotal.WithLabelValues(r.primary.Identity().Name, "empty_input").Inc()
		return Ranking{}, nil
	}

	doc := domain.NewDocument(text)
	usage := domain.UsageFromContext(ctx)

	ranking, err := r.rankWith(ctx, r.primary, doc, query, topK)
	if err == nil {
		metrics.RetrievalRequestsTotal.WithLabelValues(ranking.Provider.Name, "ranked").Inc()
		usage.SetProvider(ranking.Provider.String(), false)
		return ranking, nil
	}
	if ctx.Err() != nil {
		return Ranking{}, fmt.Errorf("retrieve: %w", ctx.Err())
	}

	primaryID := r.primary.Identity()
	if r.fallback == nil {
		r.logger.Error("Retrieval failed",
			zap.String("provider", primaryID.String()),
			zap.String("fingerprint", doc.Fingerprint),
			zap.Error(err),
		)
		metrics.RetrievalRequestsTotal.WithLabelValues(primaryID.Name, "failed").Inc()
		return Ranking{}, nil
	}

	reason := fallbackReason(err)
	r.logger.Warn("Primary provider failed, falling back to keyword ranking",
		zap.String("provider", primaryID.String()),
		zap.String("reason", reason),
		zap.String("fingerprint", doc.Fingerprint),
		zap.Error(err),
	)
	metrics.RetrievalFallbacksTotal.WithLabelValues(reason).Inc()

	ranking, err = r.rankUncached(ctx, r.fallback, doc, query, topK)
	if err != nil {
		if ctx.Err() != nil {
			return Ranking{}, fmt.Errorf("retrieve: %w", ctx.Err())
		}
		r.logger.Error("Keyword fallback failed",
			zap.String("fingerprint", doc.Fingerprint),
			zap.Error(err),
		)
		metrics.RetrievalRequestsTotal.WithLabelValues(keyword.Name, "failed").Inc()
		return Ranking{}, nil
	}

	ranking.Fallback = true
	metrics.RetrievalRequestsTotal.WithLabelValues(keyword.Name, "fallback").Inc()
	usage.SetProvider(ranking.Provider.String(), true)
	return ranking, nil
}

func (r *Retriever) rankWith(
	ctx context.Context, provider domain.Provider, doc domain.Document, query string, topK int,
) (Ranking, error) {
	defer observeDuration(provider.Identity().Name, time.Now())

	entry, err := r.cache.GetOrCompute(ctx, doc, provider)
	if err != nil {
		return Ranking{}, fmt.Errorf("encode document: %w", err)
	}
	return score(ctx, provider, entry.Chunks, entry.Representations, entry.TotalChunks, query, topK)
}

// rankUncached encodes the document's chunks with provider but leaves the
// cache untouched, so the primary provider's entry stays valid.
func (r *Retriever) rankUncached(
	ctx context.Context, provider domain.Provider, doc domain.Document, query string, topK int,
) (Ranking, error) {
	defer observeDuration(provider.Identity().Name, time.Now())

	chunks, total, err := r.cache.Chunks(doc)
	if err != nil {
		return Ranking{}, fmt.Errorf("chunk document: %w", err)
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	var reps []domain.Representation
	if len(texts) > 0 {
		reps, err = provider.Encode(ctx, texts, domain.IntentDocument)
		if err != nil {
			return Ranking{}, fmt.Errorf("encode document: %w", err)
		}
	}
	if len(reps) != len(chunks) {
		return Ranking{}, fmt.Errorf("%w: %d representations for %d chunks",
			domain.ErrEmbeddingProviderError, len(reps), len(chunks))
	}
	return score(ctx, provider, chunks, reps, total, query, topK)
}

func score(
	ctx context.Context, provider domain.Provider,
	chunks []domain.Chunk, reps []domain.Representation, total int,
	query string, topK int,
) (Ranking, error) {
	id := provider.Identity()
	if len(chunks) == 0 {
		return Ranking{Provider: id, TotalChunks: total}, nil
	}

	q, err := provider.Encode(ctx, []string{query}, domain.IntentQuery)
	if err != nil {
		return Ranking{}, fmt.Errorf("encode query: %w", err)
	}
	if len(q) != 1 {
		return Ranking{}, fmt.Errorf("%w: %d representations for one query", domain.ErrEmbeddingProviderError, len(q))
	}

	scored := make([]ScoredChunk, len(chunks))
	for i, c := range chunks {
		scored[i] = ScoredChunk{Chunk: c, Score: provider.Score(q[0], reps[i])}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	n := len(scored)
	if topK < n {
		scored = scored[:topK]
	}
	return Ranking{Chunks: scored, Provider: id, Scored: n, TotalChunks: total}, nil
}

func observeDuration(provider string, start time.Time) {
	metrics.RetrievalDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrConfiguration):
		return "configuration"
	case errors.Is(err, domain.ErrTransient):
		return "transient"
	default:
		return "provider"
	}
}
