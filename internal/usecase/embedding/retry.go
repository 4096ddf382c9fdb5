package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/papernest/internal/domain"
	"github.com/kailas-cloud/papernest/internal/metrics"
)

// RetryConfig bounds retries of transient provider failures.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// AttemptTimeout limits a single Encode call. Zero means only the caller's deadline applies.
	AttemptTimeout time.Duration
}

// RetryingProvider wraps a provider and retries transient Encode failures
// with capped exponential backoff. Configuration errors are returned at once.
type RetryingProvider struct {
	inner  domain.Provider
	cfg    RetryConfig
	logger *zap.Logger
}

// NewRetryingProvider wraps inner with retries.
func NewRetryingProvider(inner domain.Provider, cfg RetryConfig, logger *zap.Logger) *RetryingProvider {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 200 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingProvider{inner: inner, cfg: cfg, logger: logger}
}

// Identity returns the wrapped provider's identity.
func (p *RetryingProvider) Identity() domain.ProviderIdentity { return p.inner.Identity() }

// Score delegates to the wrapped provider.
func (p *RetryingProvider) Score(query, chunk domain.Representation) float64 {
	return p.inner.Score(query, chunk)
}

// Encode calls the wrapped provider until it succeeds, fails permanently,
// the caller's context ends or retries run out.
func (p *RetryingProvider) Encode(
	ctx context.Context, texts []string, intent domain.Intent,
) ([]domain.Representation, error) {
	id := p.inner.Identity()
	var lastErr error

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.backoff(attempt - 1)
			metrics.EmbeddingRetriesTotal.WithLabelValues(id.Name).Inc()
			p.logger.Warn("Retrying encode after transient failure",
				zap.String("provider", id.String()),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("encode: %w", ctx.Err())
			case <-timer.C:
			}
		}

		reps, err := p.attempt(ctx, texts, intent)
		if err == nil {
			return reps, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("encode: %w", ctx.Err())
		}
		if !domain.IsRetryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("encode failed after %d attempts: %w", p.cfg.MaxRetries+1, lastErr)
}

func (p *RetryingProvider) attempt(
	ctx context.Context, texts []string, intent domain.Intent,
) ([]domain.Representation, error) {
	if p.cfg.AttemptTimeout <= 0 {
		return p.inner.Encode(ctx, texts, intent)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
	defer cancel()

	reps, err := p.inner.Encode(attemptCtx, texts, intent)
	// Истёк таймаут попытки, а не вызывающего: повторяем.
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil && !domain.IsRetryable(err) {
		err = fmt.Errorf("%w: attempt timed out after %s: %w", domain.ErrTransient, p.cfg.AttemptTimeout, err)
	}
	return reps, err
}

func (p *RetryingProvider) backoff(retry int) time.Duration {
	if retry > 20 {
		return p.cfg.MaxDelay
	}
	d := p.cfg.BaseDelay << retry
	if d > p.cfg.MaxDelay || d <= 0 {
		return p.cfg.MaxDelay
	}
	return d
}

// HealthCheck delegates to the wrapped provider when it supports health checks.
func (p *RetryingProvider) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// Close releases resources of the wrapped provider.
func (p *RetryingProvider) Close() error {
	if c, ok := p.inner.(domain.Closer); ok {
		return c.Close()
	}
	return nil
}
