package vectorize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cognicore/tidings/pkg/tidings/embed"
	"github.com/cognicore/tidings/pkg/tidings/internalerr"
)

// Semantic embeds texts with a sentence embedding model.
type Semantic struct {
	model     embed.Model
	batchSize int
	timeout   time.Duration
}

// NewSemantic creates a semantic vectorizer. A nil model is accepted so that
// the failure surfaces as a BackendError when vectors are requested.
func NewSemantic(model embed.Model, batchSize int, timeout time.Duration) *Semantic {
	return &Semantic{model: model, batchSize: batchSize, timeout: timeout}
}

func (v *Semantic) Mode() Mode { return ModeSemantic }

// FitTransform returns unit-length embeddings. Any backend problem is
// reported as a *internalerr.BackendError.
func (v *Semantic) FitTransform(ctx context.Context, texts []string) (*Matrix, error) {
	if v.model == nil {
		return nil, &internalerr.BackendError{
			Op: "vectorize", Mode: string(ModeSemantic), Items: len(texts),
			Err: errors.New("no embedding model configured"),
		}
	}
	if len(texts) == 0 {
		return newMatrix(ModeSemantic, nil, 0, nil), nil
	}

	vecs, err := embed.Batched(ctx, v.model, texts, v.batchSize, v.timeout)
	if err != nil {
		return nil, &internalerr.BackendError{Op: "vectorize", Mode: string(ModeSemantic), Items: len(texts), Err: err}
	}

	dim := len(vecs[0])
	rows := make([][]float64, len(vecs))
	for i, vec := range vecs {
		if len(vec) != dim || dim == 0 {
			return nil, &internalerr.BackendError{
				Op: "vectorize", Mode: string(ModeSemantic), Items: len(texts),
				Err: fmt.Errorf("inconsistent embedding dimension %d at row %d, want %d", len(vec), i, dim),
			}
		}
		row := make([]float64, dim)
		copy(row, vec)
		rows[i] = embed.Normalize(row)
	}
	return newMatrix(ModeSemantic, rows, dim, nil), nil
}
