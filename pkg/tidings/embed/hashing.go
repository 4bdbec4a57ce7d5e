package embed

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/cognicore/tidings/pkg/tidings/ingest"
)

// Hashing is an offline model that hashes words and adjacent word pairs into
// a fixed number of buckets. It has no notion of meaning, but it is
// deterministic and needs no network, which makes it a usable backend for
// tests and air-gapped runs.
type Hashing struct {
	Dim int
}

// NewHashing returns a hashing model with dim buckets (default 256).
func NewHashing(dim int) *Hashing {
	if dim <= 0 {
		dim = 256
	}
	return &Hashing{Dim: dim}
}

func (h *Hashing) Name() string { return fmt.Sprintf("hashing-%d", h.Dim) }

func (h *Hashing) Close() error { return nil }

func (h *Hashing) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *Hashing) vector(text string) []float64 {
	v := make([]float64, h.Dim)
	words := ingest.Words(ingest.NewNormalizer(false).Normalize(text))
	for i, w := range words {
		h.add(v, w, 1)
		if i > 0 {
			h.add(v, words[i-1]+" "+w, 0.5)
		}
	}
	return Normalize(v)
}

func (h *Hashing) add(v []float64, feature string, weight float64) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.Dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	v[idx] += weight
}
