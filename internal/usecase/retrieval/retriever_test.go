package retrieval

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kailas-cloud/papernest/internal/domain"
	"github.com/kailas-cloud/papernest/internal/embedding/keyword"
	"github.com/kailas-cloud/papernest/internal/metrics"
	"github.com/kailas-cloud/papernest/internal/repository/embcache"
)

func TestMain(m *testing.M) {
	metrics.Register()
	os.Exit(m.Run())
}

// lineCache treats every line of the document as one chunk.
type lineCache struct {
	err   error
	calls atomic.Int32
}

func (c *lineCache) GetOrCompute(ctx context.Context, doc domain.Document, p domain.Provider) (*embcache.Entry, error) {
	c.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.err != nil {
		return nil, c.err
	}
	lines := strings.Split(doc.Text, "\n")
	chunks := make([]domain.Chunk, len(lines))
	for i, l := range lines {
		chunks[i] = domain.Chunk{Index: i, Text: l}
	}
	reps, err := p.Encode(ctx, lines, domain.IntentDocument)
	if err != nil {
		return nil, err
	}
	return &embcache.Entry{
		Fingerprint:     doc.Fingerprint,
		Provider:        p.Identity(),
		Chunks:          chunks,
		Representations: reps,
		TotalChunks:     len(chunks),
	}, nil
}

func (c *lineCache) Chunks(doc domain.Document) ([]domain.Chunk, int, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, 0, c.err
	}
	lines := strings.Split(doc.Text, "\n")
	chunks := make([]domain.Chunk, len(lines))
	for i, l := range lines {
		chunks[i] = domain.Chunk{Index: i, Text: l}
	}
	return chunks, len(chunks), nil
}

// brokenProvider always fails with err.
type brokenProvider struct {
	err   error
	calls atomic.Int32
}

func (b *brokenProvider) Identity() domain.ProviderIdentity {
	return domain.ProviderIdentity{Name: "remote", Model: "broken", Version: "1"}
}

func (b *brokenProvider) Encode(context.Context, []string, domain.Intent) ([]domain.Representation, error) {
	b.calls.Add(1)
	return nil, b.err
}

func (b *brokenProvider) Score(_, _ domain.Representation) float64 { return 0 }

const paperText = "neural networks learn\ncats sleep all day\nneural networks and transformers learn fast"

func TestRetrieve_KeywordRanking(t *testing.T) {
	r := NewRetriever(&lineCache{}, keyword.New(), Config{TopK: 5}, zap.NewNop())

	got, err := r.Retrieve(context.Background(), paperText, "Neural networks learn", 2)
	require.NoError(t, err)
	// Ties keep document order.
	assert.Equal(t, []string{
		"neural networks learn",
		"neural networks and transformers learn fast",
	}, got)
}

func TestRetrieve_TopKLargerThanChunks(t *testing.T) {
	r := NewRetriever(&lineCache{}, nil, Config{}, zap.NewNop())

	got, err := r.Retrieve(context.Background(), paperText, "cats", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "cats sleep all day", got[0])
}

func TestRetrieve_EmptyInputs(t *testing.T) {
	cache := &lineCache{}
	primary := &brokenProvider{err: errors.New("must not be called")}
	r := NewRetriever(cache, primary, Config{TopK: 5}, zap.NewNop())

	cases := []struct {
		name, text, query string
		topK              int
	}{
		{"empty text", "", "query", 3},
		{"blank text", " \n\t ", "query", 3},
		{"blank query", paperText, "   ", 3},
		{"zero topK", paperText, "neural", 0},
		{"negative topK", paperText, "neural", -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Retrieve(context.Background(), tc.text, tc.query, tc.topK)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
	assert.Zero(t, cache.calls.Load())
	assert.Zero(t, primary.calls.Load())
}

func TestRetrieve_FallsBackToKeyword(t *testing.T) {
	for _, cause := range []error{domain.ErrTransient, domain.ErrConfiguration, domain.ErrEmbeddingProviderError} {
		t.Run(cause.Error(), func(t *testing.T) {
			primary := &brokenProvider{err: domain.NewProviderError("remote", 0, cause, errors.New("boom"))}
			r := NewRetriever(&lineCache{}, primary, Config{TopK: 1}, zap.NewNop())

			ctx, usage := domain.NewContextWithUsage(context.Background())
			ranking, err := r.Rank(ctx, paperText, "cats sleep", 1)
			require.NoError(t, err)

			assert.True(t, ranking.Fallback)
			assert.Equal(t, keyword.Name, ranking.Provider.Name)
			assert.Equal(t, []string{"cats sleep all day"}, ranking.Texts())

			_, provider, fallback := usage.Snapshot()
			assert.Equal(t, "keyword@1", provider)
			assert.True(t, fallback)
		})
	}
}

func TestRetrieve_FallbackFailureIsEmpty(t *testing.T) {
	cache := &lineCache{err: errors.New("cache down")}
	primary := &brokenProvider{err: domain.ErrTransient}
	r := NewRetriever(cache, primary, Config{TopK: 3}, zap.NewNop())

	got, err := r.Retrieve(context.Background(), paperText, "neural", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, int32(2), cache.calls.Load(), "primary and fallback should both be tried")
}

func TestRetrieve_CallerCancel(t *testing.T) {
	r := NewRetriever(&lineCache{}, &brokenProvider{err: domain.ErrTransient}, Config{TopK: 3}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Retrieve(ctx, paperText, "neural", 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestContext_AssemblesWithinLimit(t *testing.T) {
	r := NewRetriever(&lineCache{}, nil, Config{TopK: 3, MaxContextLength: 50}, zap.NewNop())

	res, err := r.Context(context.Background(), paperText, "neural networks learn", 0)
	require.NoError(t, err)
	require.Len(t, res.Chunks, 3)
	assert.Equal(t, 3, res.Scored)
	assert.Equal(t, 3, res.TotalChunks)
	// Only the first ranked chunk fits in 50 runes.
	assert.Equal(t, "neural networks learn", res.Context)
}

func TestRetrieveContext_NoContext(t *testing.T) {
	r := NewRetriever(&lineCache{}, nil, Config{TopK: 3, MaxContextLength: 5}, zap.NewNop())

	got, err := r.RetrieveContext(context.Background(), paperText, "neural")
	require.NoError(t, err)
	assert.Equal(t, NoContext, got)

	got, err = r.RetrieveContext(context.Background(), "", "neural")
	require.NoError(t, err)
	assert.Equal(t, NoContext, got)
}

func TestRetrieve_WithEmbeddingCache(t *testing.T) {
	cache, err := embcache.New(embcache.Config{Capacity: 2, Window: 40, Overlap: 10}, embcache.Metrics{}, zap.NewNop())
	require.NoError(t, err)
	r := NewRetriever(cache, keyword.New(), Config{TopK: 2}, zap.NewNop())

	text := strings.Repeat("the model attends to every token in the sequence. ", 10)
	first, err := r.Retrieve(context.Background(), text, "attends token", 2)
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := r.Retrieve(context.Background(), text, "attends token", 2)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, cache.Len())
}

// countingProvider embeds a text as {occurrences of "cats", 1} and can be
// told to fail query encoding only.
type countingProvider struct {
	docCalls  atomic.Int32
	failQuery atomic.Bool
}

func (p *countingProvider) Identity() domain.ProviderIdentity {
	return domain.ProviderIdentity{Name: "remote", Model: "counting", Version: "1"}
}

func (p *countingProvider) Encode(_ context.Context, texts []string, intent domain.Intent) ([]domain.Representation, error) {
	if intent == domain.IntentQuery && p.failQuery.Load() {
		return nil, domain.NewProviderError("remote", 503, domain.ErrTransient, errors.New("service unavailable"))
	}
	if intent == domain.IntentDocument {
		p.docCalls.Add(1)
	}
	reps := make([]domain.Representation, len(texts))
	for i, t := range texts {
		reps[i] = domain.Representation{
			Provider: p.Identity(),
			Vector:   []float32{float32(strings.Count(t, "cats")), 1},
			Text:     t,
		}
	}
	return reps, nil
}

func (p *countingProvider) Score(q, c domain.Representation) float64 {
	return domain.CosineSimilarity(q.Vector, c.Vector)
}

func TestRank_QueryFailureKeepsCachedDocument(t *testing.T) {
	cache, err := embcache.New(embcache.Config{Capacity: 2, Window: 40, Overlap: 10}, embcache.Metrics{}, zap.NewNop())
	require.NoError(t, err)
	primary := &countingProvider{}
	r := NewRetriever(cache, primary, Config{TopK: 2}, zap.NewNop())
	ctx := context.Background()

	first, err := r.Rank(ctx, paperText, "cats", 2)
	require.NoError(t, err)
	assert.False(t, first.Fallback)
	require.Equal(t, int32(1), primary.docCalls.Load())

	primary.failQuery.Store(true)
	degraded, err := r.Rank(ctx, paperText, "cats sleep", 2)
	require.NoError(t, err)
	assert.True(t, degraded.Fallback)
	assert.Equal(t, keyword.Name, degraded.Provider.Name)
	assert.Equal(t, first.TotalChunks, degraded.TotalChunks)

	_, ok := cache.Get(domain.Fingerprint(paperText), primary.Identity())
	assert.True(t, ok, "primary entry must survive the fallback")

	primary.failQuery.Store(false)
	again, err := r.Rank(ctx, paperText, "cats", 2)
	require.NoError(t, err)
	assert.False(t, again.Fallback)
	assert.Equal(t, int32(1), primary.docCalls.Load(), "document must not be re-encoded")
	assert.Equal(t, 1, cache.Len())
}

func TestRank_ReportsMaxChunksTruncation(t *testing.T) {
	cache, err := embcache.New(embcache.Config{Capacity: 2, Window: 40, Overlap: 10, MaxChunks: 1},
		embcache.Metrics{}, zap.NewNop())
	require.NoError(t, err)
	r := NewRetriever(cache, keyword.New(), Config{TopK: 5}, zap.NewNop())

	ranking, err := r.Rank(context.Background(), paperText, "cats", 5)
	require.NoError(t, err)
	assert.Len(t, ranking.Chunks, 1)
	assert.Equal(t, 1, ranking.Scored)
	// 84 runes, window 40, step 30: three chunks before truncation.
	assert.Equal(t, 3, ranking.TotalChunks)
}
