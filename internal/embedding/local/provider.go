package local

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/kailas-cloud/papernest/internal/domain"
)

// Name is the provider tag used in configuration and identities.
const Name = "local"

// Provider encodes with a local Model, acquiring it per batch.
type Provider struct {
	model   *Model
	version string
}

// NewProvider wraps model. version participates in the identity so that a
// swapped table file invalidates cached vectors.
func NewProvider(model *Model, version string) *Provider {
	if version == "" {
		version = "1"
	}
	return &Provider{model: model, version: version}
}

// Identity returns the local provider identity.
func (p *Provider) Identity() domain.ProviderIdentity {
	return domain.ProviderIdentity{
		Name:    Name,
		Model:   p.model.Name(),
		Version: p.version + "-d" + strconv.Itoa(p.model.Dimensions()),
	}
}

// Encode acquires the model for this batch and releases it afterwards.
func (p *Provider) Encode(ctx context.Context, texts []string, _ domain.Intent) ([]domain.Representation, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	h, err := p.model.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire local model: %w", err)
	}
	defer h.Release()

	id := p.Identity()
	vecs := h.Encode(texts)
	reps := make([]domain.Representation, len(texts))
	for i := range texts {
		reps[i] = domain.Representation{Provider: id, Vector: vecs[i]}
	}
	return reps, nil
}

// Score returns cosine similarity.
func (p *Provider) Score(query, chunk domain.Representation) float64 {
	return domain.CosineSimilarity(query.Vector, chunk.Vector)
}

// HealthCheck verifies the table file is readable without loading it.
func (p *Provider) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.model.cfg.Path); err != nil {
		return fmt.Errorf("local model: %w", err)
	}
	return nil
}

// Close releases the model if idle.
func (p *Provider) Close() error { return p.model.Close() }
