package embedding

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/papernest/internal/config"
	"github.com/kailas-cloud/papernest/internal/domain"
	"github.com/kailas-cloud/papernest/internal/embedding/keyword"
	"github.com/kailas-cloud/papernest/internal/embedding/local"
	"github.com/kailas-cloud/papernest/internal/transport/openai"
)

// NewProvider builds the relevance provider selected by cfg.Provider.
// Remote providers are wrapped with retries. A provider that cannot be
// configured returns an error wrapping domain.ErrConfiguration.
func NewProvider(cfg config.EmbeddingConfig, logger *zap.Logger) (domain.Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Provider {
	case config.ProviderKeyword, "":
		return keyword.New(), nil

	case config.ProviderLocal:
		model, err := local.NewModel(local.ModelConfig{
			Path:              cfg.Local.Path,
			Dimensions:        cfg.Local.Dimensions,
			ReleaseAfterBatch: cfg.Local.ReleaseAfterBatch,
			Logger:            logger.Named("local_model"),
		})
		if err != nil {
			return nil, fmt.Errorf("local provider: %w", err)
		}
		return local.NewProvider(model, cfg.Local.Version), nil

	case config.ProviderRemote:
		r := cfg.Remote
		emb, err := openai.NewEmbedder(&openai.Config{
			APIKey:              r.APIKey,
			BaseURL:             r.BaseURL,
			Model:               r.Model,
			Dimensions:          r.Dimensions,
			Version:             r.Version,
			User:                r.User,
			DocumentInstruction: r.DocumentInstruction,
			QueryInstruction:    r.QueryInstruction,
			MaxBatchSize:        r.MaxBatchSize,
			RequestsPerSecond:   r.RequestsPerSecond,
			Burst:               r.Burst,
			Logger:              logger.Named("remote_embedder"),
		})
		if err != nil {
			return nil, fmt.Errorf("remote provider: %w", err)
		}
		return NewRetryingProvider(emb, RetryConfig{
			MaxRetries:     cfg.Retry.MaxRetries,
			BaseDelay:      time.Duration(cfg.Retry.BaseDelayMs) * time.Millisecond,
			MaxDelay:       time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
			AttemptTimeout: time.Duration(cfg.Retry.AttemptTimeoutSec) * time.Second,
		}, logger), nil

	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", domain.ErrConfiguration, cfg.Provider)
	}
}
