package domain

import (
	"context"
	"sync"
)

type retrievalUsageKey struct{}

// RetrievalUsage collects what retrieval did for a single HTTP request.
// The handler puts a pointer into the context before calling the service;
// providers and the retriever write to it; the handler reads it for response headers.
type RetrievalUsage struct {
	mu          sync.Mutex
	totalTokens int
	provider    string
	fallback    bool
}

// NewContextWithUsage returns a context with an embedded usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *RetrievalUsage) {
	u := &RetrievalUsage{}
	return context.WithValue(ctx, retrievalUsageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *RetrievalUsage {
	u, _ := ctx.Value(retrievalUsageKey{}).(*RetrievalUsage)
	return u
}

// AddTokens records consumed embedding tokens.
func (u *RetrievalUsage) AddTokens(n int) {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.totalTokens += n
	u.mu.Unlock()
}

// SetProvider records which provider produced the ranking.
func (u *RetrievalUsage) SetProvider(name string, fallback bool) {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.provider = name
	u.fallback = fallback
	u.mu.Unlock()
}

// Snapshot returns the collected values.
func (u *RetrievalUsage) Snapshot() (tokens int, provider string, fallback bool) {
	if u == nil {
		return 0, "", false
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.totalTokens, u.provider, u.fallback
}
