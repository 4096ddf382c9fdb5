package embcache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/papernest/internal/domain"
)

// mockProvider records encode calls and optionally blocks until released.
type mockProvider struct {
	id      domain.ProviderIdentity
	calls   atomic.Int32
	batches [][]string
	mu      sync.Mutex
	gate    chan struct{}
	errs    []error // returned in order, then nil
}

func newMockProvider(name string) *mockProvider {
	return &mockProvider{id: domain.ProviderIdentity{Name: name, Version: "1"}}
}

func (m *mockProvider) Identity() domain.ProviderIdentity { return m.id }

func (m *mockProvider) Encode(ctx context.Context, texts []string, _ domain.Intent) ([]domain.Representation, error) {
	n := m.calls.Add(1)
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	m.batches = append(m.batches, texts)
	var err error
	if int(n) <= len(m.errs) {
		err = m.errs[n-1]
	}
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	reps := make([]domain.Representation, len(texts))
	for i, t := range texts {
		reps[i] = domain.Representation{Provider: m.id, Text: t}
	}
	return reps, nil
}

func (m *mockProvider) Score(q, c domain.Representation) float64 {
	if strings.Contains(c.Text, q.Text) {
		return 1
	}
	return 0
}

func newTestCache(t *testing.T, mutate func(*Config)) *Cache {
	t.Helper()
	cfg := Config{Capacity: 2, Window: 10, Overlap: 2}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg, Metrics{}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}
