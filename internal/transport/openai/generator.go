package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/papernest/internal/domain"
	"github.com/kailas-cloud/papernest/internal/metrics"
)

// DefaultChatBaseURL is Groq's OpenAI-compatible endpoint.
const DefaultChatBaseURL = "https://api.groq.com/openai/v1"

// DefaultChatModel is the model used when none is configured.
const DefaultChatModel = "llama-3.3-70b-versatile"

// GeneratorConfig holds chat completion settings.
type GeneratorConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// Generator answers prompts through an OpenAI-compatible chat completions API.
type Generator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

// NewGenerator creates a chat completion client. A missing credential is a configuration error.
func NewGenerator(cfg *GeneratorConfig) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: chat api_key is not set", domain.ErrConfiguration)
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = DefaultChatBaseURL
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}
	model := cfg.Model
	if model == "" {
		model = DefaultChatModel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger,
	}, nil
}

// Generate sends the messages and returns the first choice's content.
// Every failure wraps domain.ErrGenerationFailed.
func (g *Generator) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    msgs,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	duration := time.Since(start)
	metrics.GenerationDuration.WithLabelValues(g.model, req.Operation).Observe(duration.Seconds())

	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(g.model, req.Operation, "error").Inc()
		status, detail := statusOf(err)
		g.logger.Error("Generation request failed",
			zap.String("model", g.model),
			zap.String("operation", req.Operation),
			zap.Int("status", status),
			zap.String("detail", detail),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		if errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("generate: %w", err)
		}
		return "", fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		metrics.GenerationRequestsTotal.WithLabelValues(g.model, req.Operation, "empty").Inc()
		return "", fmt.Errorf("%w: empty completion", domain.ErrGenerationFailed)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(g.model, req.Operation, "success").Inc()
	g.logger.Debug("Generation completed",
		zap.String("model", g.model),
		zap.String("operation", req.Operation),
		zap.Duration("duration", duration),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return resp.Choices[0].Message.Content, nil
}

// Model returns the configured chat model.
func (g *Generator) Model() string { return g.model }
