package domain

import (
	"context"
	"fmt"
	"math"
)

// Intent tells a provider what a text will be used for. Some remote models
// embed queries and documents differently.
type Intent int

const (
	// IntentDocument marks chunk text.
	IntentDocument Intent = iota
	// IntentQuery marks the user query.
	IntentQuery
)

func (i Intent) String() string {
	if i == IntentQuery {
		return "query"
	}
	return "document"
}

// ProviderIdentity tags every representation. Representations are comparable
// only when their identities are equal.
type ProviderIdentity struct {
	Name    string
	Model   string
	Version string
}

func (p ProviderIdentity) String() string {
	if p.Model == "" {
		return fmt.Sprintf("%s@%s", p.Name, p.Version)
	}
	return fmt.Sprintf("%s/%s@%s", p.Name, p.Model, p.Version)
}

// Representation is the relevance signal of one text span.
// Vector is nil for providers that score raw text on the fly.
type Representation struct {
	Provider ProviderIdentity
	Vector   []float32
	Text     string
}

// Provider is the shared relevance contract between the retrieval core and its backends.
type Provider interface {
	Identity() ProviderIdentity
	// Encode returns one representation per text, in order.
	Encode(ctx context.Context, texts []string, intent Intent) ([]Representation, error)
	// Score returns how relevant chunk is to query. Higher is better.
	Score(query, chunk Representation) float64
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Closer is implemented by providers holding resources (loaded models, connections).
type Closer interface {
	Close() error
}

// CosineSimilarity returns the normalized dot product of a and b.
// Zero-norm or mismatched vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Normalize scales v to unit length in place. Zero vectors are left as is.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}
