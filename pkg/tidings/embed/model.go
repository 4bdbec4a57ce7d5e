// Package embed provides sentence embedding backends. A Model is loaded once,
// shared read-only by the classifier and the semantic vectorizer, and closed
// at shutdown.
package embed

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Model turns texts into fixed-dimension vectors. Implementations must be
// safe for concurrent use and return exactly one vector per input text.
type Model interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	Name() string
	Close() error
}

// Defaults for Batched.
const (
	DefaultBatchSize = 64
	DefaultTimeout   = 20 * time.Second
)

// Batched embeds texts in chunks of batchSize, each call bounded by timeout.
// Output order matches input order.
func Batched(ctx context.Context, m Model, texts []string, batchSize int, timeout time.Duration) ([][]float64, error) {
	if m == nil {
		return nil, fmt.Errorf("embed: no model configured")
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := embedOnce(ctx, m, texts[start:end], timeout)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func embedOnce(ctx context.Context, m Model, batch []string, timeout time.Duration) ([][]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	vecs, err := m.Embed(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("embed %d texts with %s: %w", len(batch), m.Name(), err)
	}
	if len(vecs) != len(batch) {
		return nil, fmt.Errorf("embed: %s returned %d vectors for %d texts", m.Name(), len(vecs), len(batch))
	}
	return vecs, nil
}

// Normalize scales v to unit length in place and returns it. Zero vectors
// are left unchanged.
func Normalize(v []float64) []float64 {
	if n := floats.Norm(v, 2); n > 0 {
		floats.Scale(1/n, v)
	}
	return v
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the dimensions differ.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// MaxCosine returns the highest cosine similarity between v and refs.
func MaxCosine(v []float64, refs [][]float64) float64 {
	best := 0.0
	for i, r := range refs {
		if c := Cosine(v, r); i == 0 || c > best {
			best = c
		}
	}
	return best
}
