package main

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/papernest/internal/config"
	"github.com/kailas-cloud/papernest/internal/domain"
	"github.com/kailas-cloud/papernest/internal/embedding/keyword"
	"github.com/kailas-cloud/papernest/internal/metrics"
	"github.com/kailas-cloud/papernest/internal/repository/embcache"
	"github.com/kailas-cloud/papernest/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/papernest/internal/usecase/embedding"
	"github.com/kailas-cloud/papernest/internal/usecase/retrieval"
)

// buildProvider creates the configured relevance provider. A provider that cannot be
// configured (missing key, model file) degrades to keyword ranking instead of failing startup.
func buildProvider(cfg config.EmbeddingConfig, logger *zap.Logger) (domain.Provider, error) {
	provider, err := embeddinguc.NewProvider(cfg, logger)
	if err == nil {
		return provider, nil
	}
	if !errors.Is(err, domain.ErrConfiguration) {
		return nil, err
	}
	logger.Warn("Embedding provider unavailable, using keyword ranking",
		zap.String("provider", cfg.Provider),
		zap.Error(err),
	)
	return keyword.New(), nil
}

// buildRetriever wires the document cache and the retriever around provider.
func buildRetriever(cfg config.Config, provider domain.Provider, logger *zap.Logger) (*retrieval.Retriever, error) {
	cache, err := embcache.New(embcache.Config{
		Capacity:       cfg.Cache.Capacity,
		Window:         cfg.Retrieval.WindowSize,
		Overlap:        cfg.Retrieval.Overlap,
		MaxChunks:      cfg.Retrieval.MaxChunks,
		ComputeTimeout: time.Duration(cfg.Cache.ComputeTimeoutSec) * time.Second,
	}, embcache.Metrics{
		Lookups:   metrics.EmbeddingCacheTotal,
		Evictions: metrics.EmbeddingCacheEvictionsTotal,
		Entries:   metrics.EmbeddingCacheEntries,
		Truncated: metrics.RetrievalChunksTruncatedTotal,
	}, logger.Named("embcache"))
	if err != nil {
		return nil, err
	}

	return retrieval.NewRetriever(cache, provider, retrieval.Config{
		TopK:             cfg.Retrieval.TopK,
		MaxContextLength: cfg.Retrieval.MaxContextLength,
	}, logger.Named("retriever")), nil
}

// buildGenerator returns nil when no chat key is configured; summarize and chat
// then answer 503 while the rest of the API keeps working.
func buildGenerator(cfg config.ChatConfig, logger *zap.Logger) domain.Generator {
	gen, err := openai.NewGenerator(&openai.GeneratorConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		HTTPClient:  &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second},
		Logger:      logger.Named("generator"),
	})
	if err != nil {
		logger.Warn("Generative service not configured", zap.Error(err))
		return nil
	}
	return gen
}
