package embed

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached wraps a model with an LRU of text → vector. Seed phrases and items
// seen by both the classifier and the semantic vectorizer are embedded once.
type Cached struct {
	model Model
	cache *lru.Cache[string, []float64]
}

// NewCached wraps model with a cache holding up to size vectors.
func NewCached(model Model, size int) (*Cached, error) {
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New[string, []float64](size)
	if err != nil {
		return nil, err
	}
	return &Cached{model: model, cache: cache}, nil
}

// Name returns the wrapped model's name.
func (c *Cached) Name() string { return c.model.Name() }

// Close purges the cache and closes the wrapped model.
func (c *Cached) Close() error {
	c.cache.Purge()
	return c.model.Close()
}

// Len returns the number of cached vectors.
func (c *Cached) Len() int { return c.cache.Len() }

// Embed serves cached vectors and forwards only the misses, deduplicated.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	missIdx := make(map[string][]int)
	var misses []string

	for i, text := range texts {
		if v, ok := c.cache.Get(text); ok {
			out[i] = v
			continue
		}
		if _, pending := missIdx[text]; !pending {
			misses = append(misses, text)
		}
		missIdx[text] = append(missIdx[text], i)
	}
	if len(misses) == 0 {
		return out, nil
	}

	vecs, err := c.model.Embed(ctx, misses)
	if err != nil {
		return nil, err
	}
	for j, text := range misses {
		if j >= len(vecs) {
			break
		}
		c.cache.Add(text, vecs[j])
		for _, i := range missIdx[text] {
			out[i] = vecs[j]
		}
	}
	return out, nil
}
