package classify

import (
	"context"
	"sync"
	"time"

	"github.com/cognicore/tidings/pkg/tidings/embed"
	"github.com/cognicore/tidings/pkg/tidings/lexicon"
)

// Method names used in configuration.
const (
	MethodKeywords = "keywords"
	MethodHybrid   = "hybrid"
)

// ScoringMethod turns per-topic lexical scores into combined scores.
//
// lexical[i][j] is the score of text i for topic j (topics in the order the
// method was built with). Implementations return combined scores of the same
// shape and, when they compute one, the embedding similarity per cell; a nil
// similarity means none was computed.
type ScoringMethod interface {
	Name() string
	Blend(ctx context.Context, texts []string, lexical [][]float64) (combined, similarity [][]float64, err error)
}

// Lexical uses keyword evidence only.
type Lexical struct{}

func (Lexical) Name() string { return MethodKeywords }

func (Lexical) Blend(_ context.Context, _ []string, lexical [][]float64) ([][]float64, [][]float64, error) {
	return lexical, nil, nil
}

// SemanticOptions tune the semantic-augmented method.
type SemanticOptions struct {
	BatchSize int
	Timeout   time.Duration
}

// Semantic blends keyword scores with the maximum cosine similarity between
// the item embedding and the topic's seed phrases.
type Semantic struct {
	model  embed.Model
	topics []lexicon.Topic
	opts   SemanticOptions

	mu    sync.Mutex
	seeds [][][]float64 // per topic, per seed phrase
}

// NewSemantic builds the method for topics. Seed embeddings are computed on
// first use and kept for the lifetime of the method.
func NewSemantic(model embed.Model, topics []lexicon.Topic, opts SemanticOptions) *Semantic {
	return &Semantic{model: model, topics: topics, opts: opts}
}

func (s *Semantic) Name() string { return MethodHybrid }

func (s *Semantic) Blend(ctx context.Context, texts []string, lexical [][]float64) ([][]float64, [][]float64, error) {
	seeds, err := s.seedVectors(ctx)
	if err != nil {
		return nil, nil, err
	}
	vecs, err := embed.Batched(ctx, s.model, texts, s.opts.BatchSize, s.opts.Timeout)
	if err != nil {
		return nil, nil, err
	}

	combined := make([][]float64, len(texts))
	similarity := make([][]float64, len(texts))
	for i := range texts {
		combined[i] = make([]float64, len(s.topics))
		similarity[i] = make([]float64, len(s.topics))
		for j, topic := range s.topics {
			if len(seeds[j]) == 0 {
				combined[i][j] = lexical[i][j]
				similarity[i][j] = -1
				continue
			}
			sim := clamp01(embed.MaxCosine(vecs[i], seeds[j]))
			similarity[i][j] = sim
			combined[i][j] = Blend(lexical[i][j], sim, topic.EmbeddingWeight)
		}
	}
	return combined, similarity, nil
}

func (s *Semantic) seedVectors(ctx context.Context) ([][][]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seeds != nil {
		return s.seeds, nil
	}

	var phrases []string
	offsets := make([]int, len(s.topics)+1)
	for j, topic := range s.topics {
		offsets[j] = len(phrases)
		phrases = append(phrases, topic.SeedPhrases()...)
	}
	offsets[len(s.topics)] = len(phrases)

	vecs, err := embed.Batched(ctx, s.model, phrases, s.opts.BatchSize, s.opts.Timeout)
	if err != nil {
		return nil, err
	}
	seeds := make([][][]float64, len(s.topics))
	for j := range s.topics {
		seeds[j] = vecs[offsets[j]:offsets[j+1]]
	}
	s.seeds = seeds
	return seeds, nil
}
