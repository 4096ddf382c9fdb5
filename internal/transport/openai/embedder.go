package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/papernest/internal/domain"
	"github.com/kailas-cloud/papernest/internal/metrics"
)

// ProviderName is the provider tag used in configuration and identities.
const ProviderName = "remote"

// DefaultMaxBatchSize is the largest input list sent in one embeddings request.
const DefaultMaxBatchSize = 256

// Embedder is a relevance provider backed by an OpenAI-compatible embeddings API.
type Embedder struct {
	client       *openai.Client
	model        openai.EmbeddingModel
	dimensions   int
	version      string
	user         string
	docPrefix    string
	queryPrefix  string
	maxBatchSize int
	limiter      *rate.Limiter
	logger       *zap.Logger
}

// Config holds the embedding provider settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	// Version is bumped by operators when the upstream model changes under the same name.
	Version string
	User    string

	DocumentInstruction string
	QueryInstruction    string

	MaxBatchSize      int
	RequestsPerSecond float64 // 0 = unlimited
	Burst             int

	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewEmbedder creates an OpenAI-compatible embedding provider.
// A missing credential is a configuration error.
func NewEmbedder(cfg *Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: remote embedding api_key is not set", domain.ErrConfiguration)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: remote embedding model is not set", domain.ErrConfiguration)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	maxBatch := cfg.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatchSize
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	version := cfg.Version
	if version == "" {
		version = "1"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Embedder{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        openai.EmbeddingModel(cfg.Model),
		dimensions:   cfg.Dimensions,
		version:      version,
		user:         cfg.User,
		docPrefix:    cfg.DocumentInstruction,
		queryPrefix:  cfg.QueryInstruction,
		maxBatchSize: maxBatch,
		limiter:      limiter,
		logger:       logger,
	}, nil
}

// Identity tags vectors with model, version and dimensionality.
func (e *Embedder) Identity() domain.ProviderIdentity {
	return domain.ProviderIdentity{
		Name:    ProviderName,
		Model:   string(e.model),
		Version: e.version + "-d" + strconv.Itoa(e.dimensions),
	}
}

// Encode embeds texts in sub-batches of at most maxBatchSize inputs.
// Query and document intents get their own instruction prefix.
func (e *Embedder) Encode(ctx context.Context, texts []string, intent domain.Intent) ([]domain.Representation, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	prefix := e.docPrefix
	if intent == domain.IntentQuery {
		prefix = e.queryPrefix
	}

	id := e.Identity()
	reps := make([]domain.Representation, 0, len(texts))
	for offset := 0; offset < len(texts); offset += e.maxBatchSize {
		end := min(offset+e.maxBatchSize, len(texts))

		inputs := make([]string, end-offset)
		for i, t := range texts[offset:end] {
			inputs[i] = prefix + t
		}

		vecs, err := e.embedBatch(ctx, inputs)
		if err != nil {
			e.logger.Warn("Embedding batch failed",
				zap.String("model", string(e.model)),
				zap.String("intent", intent.String()),
				zap.Int("batch_offset", offset),
				zap.Int("batch_size", len(inputs)),
				zap.Error(err),
			)
			return nil, err
		}
		for _, v := range vecs {
			reps = append(reps, domain.Representation{Provider: id, Vector: v})
		}
	}
	return reps, nil
}

func (e *Embedder) embedBatch(ctx context.Context, inputs []string) ([][]float32, error) {
	model := string(e.model)
	if err := e.limiter.Wait(ctx); err != nil {
		metrics.EmbeddingErrorsTotal.WithLabelValues(ProviderName, model, "rate_limited").Inc()
		return nil, domain.NewProviderError(ProviderName, 0, domain.ErrTransient, fmt.Errorf("rate limiter: %w", err))
	}

	req := openai.EmbeddingRequest{
		Input:          inputs,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           e.user,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	duration := time.Since(start)

	if err != nil {
		classified := classifyError(err)
		metrics.EmbeddingRequestsTotal.WithLabelValues(ProviderName, model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(ProviderName, model, errorType(classified)).Inc()
		return nil, classified
	}
	if len(resp.Data) != len(inputs) {
		metrics.EmbeddingRequestsTotal.WithLabelValues(ProviderName, model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(ProviderName, model, "short_response").Inc()
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs: %w",
			len(resp.Data), len(inputs), domain.ErrEmbeddingProviderError)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(ProviderName, model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(ProviderName, model).Observe(duration.Seconds())
	if resp.Usage.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(ProviderName, model, "prompt").Add(float64(resp.Usage.PromptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(ProviderName, model, "total").Add(float64(resp.Usage.TotalTokens))
		domain.UsageFromContext(ctx).AddTokens(resp.Usage.TotalTokens)
	}

	// Сервер не обязан сохранять порядок, сортируем по index.
	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	vecs := make([][]float32, len(data))
	for i, d := range data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

// Score returns cosine similarity.
func (e *Embedder) Score(query, chunk domain.Representation) float64 {
	return domain.CosineSimilarity(query.Vector, chunk.Vector)
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", classifyError(err))
	}
	return nil
}

// classifyError maps transport failures onto the provider error taxonomy.
func classifyError(err error) error {
	status, detail := statusOf(err)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.NewProviderError(ProviderName, status, domain.ErrConfiguration, errors.New(detail))
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500:
		return domain.NewProviderError(ProviderName, status, domain.ErrTransient, errors.New(detail))
	case status > 0:
		return domain.NewProviderError(ProviderName, status, domain.ErrEmbeddingProviderError, errors.New(detail))
	}

	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("embedding request: %w", err)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return domain.NewProviderError(ProviderName, 0, domain.ErrTransient, err)
	}
	return domain.NewProviderError(ProviderName, 0, domain.ErrEmbeddingProviderError, err)
}

// statusOf extracts the HTTP status and a human-readable message from go-openai errors.
func statusOf(err error) (int, string) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, apiErr.Message
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if detail := extractDetail(reqErr.Body); detail != "" {
			return reqErr.HTTPStatusCode, detail
		}
		return reqErr.HTTPStatusCode, string(reqErr.Body)
	}
	return 0, ""
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}

func errorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrConfiguration):
		return "configuration"
	case errors.Is(err, domain.ErrTransient):
		return "transient"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "provider"
	}
}
