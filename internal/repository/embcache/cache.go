// Package embcache memoizes chunked and encoded documents in process memory.
package embcache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/papernest/internal/domain"
	"github.com/kailas-cloud/papernest/internal/domain/chunk"
)

// DefaultCapacity is the number of documents kept when none is configured.
const DefaultCapacity = 10

// Entry is the immutable cached state of one document under one provider.
type Entry struct {
	Fingerprint     string
	Provider        domain.ProviderIdentity
	Chunks          []domain.Chunk
	Representations []domain.Representation
	// TotalChunks counts chunks before the MaxChunks limit was applied.
	TotalChunks int
}

// Config holds cache and chunking settings.
type Config struct {
	Capacity int
	Window   int
	Overlap  int
	// MaxChunks caps how many leading chunks are encoded per document. 0 = unlimited.
	MaxChunks int
	// ComputeTimeout bounds a single chunk+encode run. 0 = no bound beyond the caller's.
	ComputeTimeout time.Duration
}

// Metrics are the collectors the cache reports to. Any field may be nil.
type Metrics struct {
	Lookups   *prometheus.CounterVec // label "result": hit / miss / mismatch
	Evictions prometheus.Counter
	Entries   prometheus.Gauge
	Truncated prometheus.Counter
}

type slot struct {
	entry      *Entry
	lastAccess time.Time
}

// Cache is an LRU of document entries with single-flight population.
// Safe for concurrent use.
type Cache struct {
	cfg     Config
	metrics Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List // front = most recently used

	flights singleflight.Group
}

// New creates a cache. Chunking parameters are validated up front.
func New(cfg Config, m Metrics, logger *zap.Logger) (*Cache, error) {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if err := chunk.Validate(cfg.Window, cfg.Overlap); err != nil {
		return nil, err
	}
	if cfg.MaxChunks < 0 {
		return nil, fmt.Errorf("%w: max_chunks must be >= 0", domain.ErrInvalidChunking)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		now:     time.Now,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}, nil
}

// GetOrCompute returns the entry for doc computed under provider, chunking and
// encoding it on a miss. Concurrent callers for the same document share one
// computation. An entry computed under another provider identity is replaced.
func (c *Cache) GetOrCompute(ctx context.Context, doc domain.Document, provider domain.Provider) (*Entry, error) {
	id := provider.Identity()

	if e, err := c.lookup(doc.Fingerprint, id); err == nil {
		c.count("hit")
		return e, nil
	} else if errors.Is(err, domain.ErrProviderMismatch) {
		c.count("mismatch")
	} else {
		c.count("miss")
	}

	key := doc.Fingerprint + "|" + id.String()
	ch := c.flights.DoChan(key, func() (any, error) {
		// Проверяем ещё раз: предыдущий flight мог завершиться между lookup и DoChan.
		if e, err := c.lookup(doc.Fingerprint, id); err == nil {
			return e, nil
		}
		computeCtx := context.WithoutCancel(ctx)
		if c.cfg.ComputeTimeout > 0 {
			var cancel context.CancelFunc
			computeCtx, cancel = context.WithTimeout(computeCtx, c.cfg.ComputeTimeout)
			defer cancel()
		}
		e, err := c.compute(computeCtx, doc, provider)
		if err != nil {
			return nil, err
		}
		c.store(e)
		return e, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Entry), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for document encoding: %w", ctx.Err())
	}
}

// Get returns the cached entry for fingerprint under id without computing.
func (c *Cache) Get(fingerprint string, id domain.ProviderIdentity) (*Entry, bool) {
	e, err := c.lookup(fingerprint, id)
	return e, err == nil
}

// Chunks returns the chunks of doc and the count before MaxChunks applied,
// reusing a cached entry of any provider. Nothing is encoded or stored.
func (c *Cache) Chunks(doc domain.Document) ([]domain.Chunk, int, error) {
	c.mu.Lock()
	var e *Entry
	if el, ok := c.items[doc.Fingerprint]; ok {
		e = el.Value.(*slot).entry
	}
	c.mu.Unlock()
	if e != nil {
		return e.Chunks, e.TotalChunks, nil
	}
	return c.split(doc.Text)
}

// Len returns the number of cached documents.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache) lookup(fingerprint string, id domain.ProviderIdentity) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[fingerprint]
	if !ok {
		return nil, domain.ErrNotFound
	}
	s := el.Value.(*slot)
	if s.entry.Provider != id {
		return nil, domain.ErrProviderMismatch
	}
	s.lastAccess = c.now()
	c.order.MoveToFront(el)
	return s.entry, nil
}

func (c *Cache) store(e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[e.Fingerprint]; ok {
		el.Value.(*slot).entry = e
		el.Value.(*slot).lastAccess = c.now()
		c.order.MoveToFront(el)
		return
	}

	c.items[e.Fingerprint] = c.order.PushFront(&slot{entry: e, lastAccess: c.now()})
	for c.order.Len() > c.cfg.Capacity {
		c.evictOldestLocked()
	}
	c.setEntriesGauge()
}

func (c *Cache) evictOldestLocked() {
	el := c.order.Back()
	if el == nil {
		return
	}
	s := el.Value.(*slot)
	c.order.Remove(el)
	delete(c.items, s.entry.Fingerprint)
	if c.metrics.Evictions != nil {
		c.metrics.Evictions.Inc()
	}
	c.logger.Debug("Evicted document from embedding cache",
		zap.String("fingerprint", s.entry.Fingerprint),
		zap.Time("last_access", s.lastAccess),
	)
}

func (c *Cache) compute(ctx context.Context, doc domain.Document, provider domain.Provider) (*Entry, error) {
	chunks, total, err := c.split(doc.Text)
	if err != nil {
		return nil, err
	}
	if total > len(chunks) {
		if c.metrics.Truncated != nil {
			c.metrics.Truncated.Add(float64(total - c.cfg.MaxChunks))
		}
		c.logger.Info("Document exceeds max_chunks, trailing chunks are not searchable",
			zap.String("fingerprint", doc.Fingerprint),
			zap.Int("chunks", total),
			zap.Int("max_chunks", c.cfg.MaxChunks),
		)
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	var reps []domain.Representation
	if len(texts) > 0 {
		reps, err = provider.Encode(ctx, texts, domain.IntentDocument)
		if err != nil {
			return nil, fmt.Errorf("encode %d chunks: %w", len(texts), err)
		}
	}
	if len(reps) != len(chunks) {
		return nil, fmt.Errorf("provider returned %d representations for %d chunks: %w",
			len(reps), len(chunks), domain.ErrEmbeddingProviderError)
	}

	return &Entry{
		Fingerprint:     doc.Fingerprint,
		Provider:        provider.Identity(),
		Chunks:          chunks,
		Representations: reps,
		TotalChunks:     total,
	}, nil
}

func (c *Cache) split(text string) ([]domain.Chunk, int, error) {
	chunks, err := chunk.Split(text, c.cfg.Window, c.cfg.Overlap)
	if err != nil {
		return nil, 0, err
	}
	total := len(chunks)
	if c.cfg.MaxChunks > 0 && total > c.cfg.MaxChunks {
		chunks = chunks[:c.cfg.MaxChunks]
	}
	return chunks, total, nil
}

func (c *Cache) count(result string) {
	if c.metrics.Lookups != nil {
		c.metrics.Lookups.WithLabelValues(result).Inc()
	}
}

func (c *Cache) setEntriesGauge() {
	if c.metrics.Entries != nil {
		c.metrics.Entries.Set(float64(c.order.Len()))
	}
}
