package embedding

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kailas-cloud/papernest/internal/config"
	"github.com/kailas-cloud/papernest/internal/domain"
	"github.com/kailas-cloud/papernest/internal/embedding/keyword"
)

func TestNewProvider_Keyword(t *testing.T) {
	p, err := NewProvider(config.EmbeddingConfig{Provider: config.ProviderKeyword}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Identity().Name != keyword.Name {
		t.Errorf("expected keyword provider, got %s", p.Identity())
	}
}

func TestNewProvider_Local(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.txt")
	if err := os.WriteFile(path, []byte("paper 1 0\nmodel 0 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := NewProvider(config.EmbeddingConfig{
		Provider: config.ProviderLocal,
		Local:    config.LocalConfig{Path: path, Dimensions: 2, Version: "1"},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Identity().Name != "local" {
		t.Errorf("expected local provider, got %s", p.Identity())
	}
	if c, ok := p.(domain.Closer); ok {
		_ = c.Close()
	}
}

func TestNewProvider_LocalMissingPath(t *testing.T) {
	_, err := NewProvider(config.EmbeddingConfig{Provider: config.ProviderLocal}, nil)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestNewProvider_RemoteWrappedWithRetry(t *testing.T) {
	p, err := NewProvider(config.EmbeddingConfig{
		Provider: config.ProviderRemote,
		Remote:   config.RemoteConfig{APIKey: "sk-test", Model: "text-embedding-3-small", Version: "1"},
		Retry:    config.RetryConfig{MaxRetries: 2, BaseDelayMs: 10, MaxDelayMs: 100},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(*RetryingProvider); !ok {
		t.Fatalf("expected *RetryingProvider, got %T", p)
	}
	if p.Identity().Model != "text-embedding-3-small" {
		t.Errorf("unexpected identity %s", p.Identity())
	}
}

func TestNewProvider_RemoteMissingKey(t *testing.T) {
	_, err := NewProvider(config.EmbeddingConfig{
		Provider: config.ProviderRemote,
		Remote:   config.RemoteConfig{Model: "text-embedding-3-small"},
	}, nil)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestNewProvider_Unknown(t *testing.T) {
	_, err := NewProvider(config.EmbeddingConfig{Provider: "bm25"}, nil)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
