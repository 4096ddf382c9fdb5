package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/papernest/internal/domain"
	"github.com/kailas-cloud/papernest/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Register()
	os.Exit(m.Run())
}

// flakyProvider fails the first `failures` calls with err.
type flakyProvider struct {
	failures int32
	err      error
	calls    atomic.Int32
	block    bool
}

func (f *flakyProvider) Identity() domain.ProviderIdentity {
	return domain.ProviderIdentity{Name: "flaky", Model: "m", Version: "1"}
}

func (f *flakyProvider) Encode(ctx context.Context, texts []string, _ domain.Intent) ([]domain.Representation, error) {
	n := f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if n <= f.failures {
		return nil, f.err
	}
	reps := make([]domain.Representation, len(texts))
	for i, t := range texts {
		reps[i] = domain.Representation{Provider: f.Identity(), Text: t}
	}
	return reps, nil
}

func (f *flakyProvider) Score(_, _ domain.Representation) float64 { return 1 }

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{MaxRetries: maxRetries, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func transientErr() error {
	return domain.NewProviderError("flaky", 503, domain.ErrTransient, errors.New("unavailable"))
}

func TestRetryingProvider_RecoversFromTransient(t *testing.T) {
	inner := &flakyProvider{failures: 2, err: transientErr()}
	p := NewRetryingProvider(inner, fastRetry(3), zap.NewNop())

	reps, err := p.Encode(context.Background(), []string{"a", "b"}, domain.IntentDocument)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reps) != 2 {
		t.Fatalf("expected 2 representations, got %d", len(reps))
	}
	if got := inner.calls.Load(); got != 3 {
		t.Errorf("expected 3 calls, got %d", got)
	}
}

func TestRetryingProvider_ConfigurationNotRetried(t *testing.T) {
	cfgErr := domain.NewProviderError("flaky", 401, domain.ErrConfiguration, errors.New("bad key"))
	inner := &flakyProvider{failures: 10, err: cfgErr}
	p := NewRetryingProvider(inner, fastRetry(3), zap.NewNop())

	_, err := p.Encode(context.Background(), []string{"a"}, domain.IntentQuery)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if got := inner.calls.Load(); got != 1 {
		t.Errorf("expected 1 call, got %d", got)
	}
}

func TestRetryingProvider_Exhausted(t *testing.T) {
	inner := &flakyProvider{failures: 10, err: transientErr()}
	p := NewRetryingProvider(inner, fastRetry(2), zap.NewNop())

	_, err := p.Encode(context.Background(), []string{"a"}, domain.IntentDocument)
	if !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	if got := inner.calls.Load(); got != 3 {
		t.Errorf("expected 3 calls, got %d", got)
	}
}

func TestRetryingProvider_CallerCancelStopsRetries(t *testing.T) {
	inner := &flakyProvider{failures: 10, err: transientErr()}
	p := NewRetryingProvider(inner, RetryConfig{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := p.Encode(ctx, []string{"a"}, domain.IntentDocument)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := inner.calls.Load(); got != 1 {
		t.Errorf("expected 1 call before cancel, got %d", got)
	}
}

func TestRetryingProvider_AttemptTimeoutIsTransient(t *testing.T) {
	inner := &flakyProvider{block: true}
	cfg := fastRetry(1)
	cfg.AttemptTimeout = 10 * time.Millisecond
	p := NewRetryingProvider(inner, cfg, zap.NewNop())

	_, err := p.Encode(context.Background(), []string{"a"}, domain.IntentDocument)
	if !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected wrapped DeadlineExceeded, got %v", err)
	}
	if got := inner.calls.Load(); got != 2 {
		t.Errorf("expected 2 calls, got %d", got)
	}
}

func TestRetryingProvider_Backoff(t *testing.T) {
	p := NewRetryingProvider(&flakyProvider{}, RetryConfig{
		BaseDelay: 200 * time.Millisecond,
		MaxDelay:  5 * time.Second,
	}, nil)

	tests := []struct {
		retry int
		want  time.Duration
	}{
		{0, 200 * time.Millisecond},
		{1, 400 * time.Millisecond},
		{3, 1600 * time.Millisecond},
		{5, 5 * time.Second},
		{64, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("retry=%d", tt.retry), func(t *testing.T) {
			if got := p.backoff(tt.retry); got != tt.want {
				t.Errorf("backoff(%d) = %s, want %s", tt.retry, got, tt.want)
			}
		})
	}
}

func TestRetryingProvider_DelegatesIdentity(t *testing.T) {
	inner := &flakyProvider{}
	p := NewRetryingProvider(inner, fastRetry(0), nil)
	if p.Identity() != inner.Identity() {
		t.Errorf("identity not delegated: %v", p.Identity())
	}
	if err := p.HealthCheck(context.Background()); err != nil {
		t.Errorf("provider without health check should report healthy: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
}
