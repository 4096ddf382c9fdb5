package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/papernest/internal/domain"
	"github.com/kailas-cloud/papernest/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Register()
	os.Exit(m.Run())
}

type embeddingDatum struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// openaiEmbeddingResponse mirrors the OpenAI-compatible API embedding response.
type openaiEmbeddingResponse struct {
	Object string           `json:"object"`
	Data   []embeddingDatum `json:"data"`
	Model  string           `json:"model"`
	Usage  struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
}

// embeddingServer answers with vector [len(input), index] for every input,
// listed in reverse order to exercise index-based reordering.
func embeddingServer(t *testing.T, calls *atomic.Int32, seen *[][]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if calls != nil {
			calls.Add(1)
		}
		if seen != nil {
			*seen = append(*seen, req.Input)
		}

		resp := openaiEmbeddingResponse{Object: "list", Model: req.Model}
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, embeddingDatum{
				Object:    "embedding",
				Embedding: []float32{float32(len(req.Input[i])), float32(i)},
				Index:     i,
			})
		}
		resp.Usage.PromptTokens = 3 * len(req.Input)
		resp.Usage.TotalTokens = 3 * len(req.Input)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newTestEmbedder(t *testing.T, url string, mutate func(*Config)) *Embedder {
	t.Helper()
	cfg := &Config{
		APIKey:     "test-key",
		BaseURL:    url,
		Model:      "test-model",
		Dimensions: 2,
		Logger:     zap.NewNop(),
	}
	if mutate != nil {
		mutate(cfg)
	}
	emb, err := NewEmbedder(cfg)
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}
	return emb
}

func TestNewEmbedder_MissingCredential(t *testing.T) {
	_, err := NewEmbedder(&Config{Model: "m"})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestEmbedder_Encode_OrderAndIdentity(t *testing.T) {
	server := embeddingServer(t, nil, nil)
	defer server.Close()

	emb := newTestEmbedder(t, server.URL, nil)
	reps, err := emb.Encode(context.Background(), []string{"a", "bbb", "cc"}, domain.IntentDocument)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(reps) != 3 {
		t.Fatalf("expected 3 representations, got %d", len(reps))
	}
	for i, want := range []float32{1, 3, 2} {
		if reps[i].Vector[0] != want || reps[i].Vector[1] != float32(i) {
			t.Errorf("rep %d = %v, want [%v %d]", i, reps[i].Vector, want, i)
		}
		if reps[i].Provider != emb.Identity() {
			t.Errorf("rep %d identity = %v", i, reps[i].Provider)
		}
	}

	id := emb.Identity()
	if id.Name != ProviderName || id.Model != "test-model" || id.Version != "1-d2" {
		t.Errorf("unexpected identity: %+v", id)
	}
}

func TestEmbedder_Encode_SubBatches(t *testing.T) {
	var calls atomic.Int32
	var seen [][]string
	server := embeddingServer(t, &calls, &seen)
	defer server.Close()

	emb := newTestEmbedder(t, server.URL, func(c *Config) { c.MaxBatchSize = 2 })
	texts := []string{"1", "22", "333", "4444", "55555"}

	reps, err := emb.Encode(context.Background(), texts, domain.IntentDocument)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 requests, got %d", calls.Load())
	}
	for _, batch := range seen {
		if len(batch) > 2 {
			t.Errorf("batch exceeds max size: %v", batch)
		}
	}
	for i, r := range reps {
		if int(r.Vector[0]) != len(texts[i]) {
			t.Errorf("rep %d out of order: %v", i, r.Vector)
		}
	}
}

func TestEmbedder_Encode_IntentInstructions(t *testing.T) {
	var seen [][]string
	server := embeddingServer(t, nil, &seen)
	defer server.Close()

	emb := newTestEmbedder(t, server.URL, func(c *Config) {
		c.DocumentInstruction = "search_document: "
		c.QueryInstruction = "search_query: "
	})

	if _, err := emb.Encode(context.Background(), []string{"chunk"}, domain.IntentDocument); err != nil {
		t.Fatalf("Encode document: %v", err)
	}
	if _, err := emb.Encode(context.Background(), []string{"question"}, domain.IntentQuery); err != nil {
		t.Fatalf("Encode query: %v", err)
	}
	if seen[0][0] != "search_document: chunk" {
		t.Errorf("document input = %q", seen[0][0])
	}
	if seen[1][0] != "search_query: question" {
		t.Errorf("query input = %q", seen[1][0])
	}
}

func TestEmbedder_Encode_RecordsUsage(t *testing.T) {
	server := embeddingServer(t, nil, nil)
	defer server.Close()

	emb := newTestEmbedder(t, server.URL, nil)
	ctx, usage := domain.NewContextWithUsage(context.Background())
	if _, err := emb.Encode(ctx, []string{"a", "b"}, domain.IntentDocument); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if tokens, _, _ := usage.Snapshot(); tokens != 6 {
		t.Errorf("expected 6 tokens recorded, got %d", tokens)
	}
}

func TestEmbedder_Encode_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key","type":"auth"}}`, domain.ErrConfiguration},
		{"forbidden", http.StatusForbidden, `{"detail":"no access"}`, domain.ErrConfiguration},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"rate"}}`, domain.ErrTransient},
		{"server error", http.StatusBadGateway, `upstream down`, domain.ErrTransient},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"input too long","type":"invalid"}}`, domain.ErrEmbeddingProviderError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			emb := newTestEmbedder(t, server.URL, nil)
			_, err := emb.Encode(context.Background(), []string{"x"}, domain.IntentDocument)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var perr *domain.ProviderError
			if !errors.As(err, &perr) || perr.StatusCode != tt.status {
				t.Errorf("expected ProviderError with status %d, got %v", tt.status, err)
			}
		})
	}
}

func TestEmbedder_Encode_ShortResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[],"model":"m"}`))
	}))
	defer server.Close()

	emb := newTestEmbedder(t, server.URL, nil)
	_, err := emb.Encode(context.Background(), []string{"x"}, domain.IntentDocument)
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

func TestEmbedder_Encode_UnreachableIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	emb := newTestEmbedder(t, url, nil)
	_, err := emb.Encode(context.Background(), []string{"x"}, domain.IntentDocument)
	if !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
}

func TestEmbedder_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"test-model","object":"model"}]}`))
	}))
	defer server.Close()

	if err := newTestEmbedder(t, server.URL, nil).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
}

func TestEmbedder_Score(t *testing.T) {
	emb := newTestEmbedder(t, "http://unused", nil)
	a := domain.Representation{Vector: []float32{1, 0}}
	b := domain.Representation{Vector: []float32{1, 0}}
	if s := emb.Score(a, b); s < 0.999 {
		t.Errorf("expected cosine 1, got %f", s)
	}
}
