// Package keyword implements the word-overlap relevance provider.
// It has no external dependencies and is always available.
package keyword

import (
	"context"
	"strings"

	"github.com/kailas-cloud/papernest/internal/domain"
)

// Name is the provider tag used in configuration and identities.
const Name = "keyword"

// version bumps whenever tokenization changes.
const version = "1"

// Provider scores chunks by the share of query words they contain.
type Provider struct{}

// New creates a keyword provider.
func New() *Provider { return &Provider{} }

// Identity returns the keyword provider identity.
func (p *Provider) Identity() domain.ProviderIdentity {
	return domain.ProviderIdentity{Name: Name, Version: version}
}

// Encode wraps texts without precomputation; scoring tokenizes on the fly.
func (p *Provider) Encode(_ context.Context, texts []string, _ domain.Intent) ([]domain.Representation, error) {
	id := p.Identity()
	reps := make([]domain.Representation, len(texts))
	for i, t := range texts {
		reps[i] = domain.Representation{Provider: id, Text: t}
	}
	return reps, nil
}

// Score returns |q ∩ c| / |q| over lowercased whitespace-separated words, 0 for an empty query.
func (p *Provider) Score(query, chunk domain.Representation) float64 {
	return Overlap(query.Text, chunk.Text)
}

// Overlap is the keyword score of chunk against query.
func Overlap(query, chunk string) float64 {
	q := Words(query)
	if len(q) == 0 {
		return 0
	}
	c := Words(chunk)
	matched := 0
	for w := range q {
		if _, ok := c[w]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(q))
}

// Words returns the set of lowercased whitespace-separated words in s.
func Words(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
