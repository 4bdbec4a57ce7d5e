package vectorize

import (
	"context"
	"math"
	"sort"

	"github.com/cognicore/tidings/pkg/tidings/embed"
	"github.com/cognicore/tidings/pkg/tidings/ingest"
)

// TFIDFOptions tune vocabulary pruning. Zero values select the defaults.
type TFIDFOptions struct {
	MinDF       int     // minimum document frequency, applied when n >= 2*MinDF (default 2)
	MaxDF       float64 // maximum document frequency ratio, applied when n > 2 (default 0.85)
	MaxFeatures int     // vocabulary cap, most frequent terms first (default 5000)
	NoBigrams   bool
}

// TFIDF builds smoothed TF-IDF vectors over unigrams and bigrams of the
// pipeline's tokens.
type TFIDF struct {
	pipeline *ingest.Pipeline
	opts     TFIDFOptions
}

// NewTFIDF creates a lexical vectorizer.
func NewTFIDF(p *ingest.Pipeline, opts TFIDFOptions) *TFIDF {
	if opts.MinDF <= 0 {
		opts.MinDF = 2
	}
	if opts.MaxDF <= 0 || opts.MaxDF > 1 {
		opts.MaxDF = 0.85
	}
	if opts.MaxFeatures <= 0 {
		opts.MaxFeatures = 5000
	}
	if p == nil {
		p = ingest.NewPipeline(nil, nil, false, 0)
	}
	return &TFIDF{pipeline: p, opts: opts}
}

func (v *TFIDF) Mode() Mode { return ModeLexical }

// Terms returns the unigram and bigram terms of text, in order.
func (v *TFIDF) Terms(text string) []string {
	tokens := v.pipeline.Tokens(text, "")
	if v.opts.NoBigrams || len(tokens) < 2 {
		return tokens
	}
	out := make([]string, 0, 2*len(tokens)-1)
	out = append(out, tokens...)
	for i := 1; i < len(tokens); i++ {
		out = append(out, tokens[i-1]+" "+tokens[i])
	}
	return out
}

func (v *TFIDF) FitTransform(ctx context.Context, texts []string) (*Matrix, error) {
	n := len(texts)
	counts := make([]map[string]int, n)
	df := make(map[string]int)
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		counts[i] = make(map[string]int)
		for _, term := range v.Terms(text) {
			counts[i][term]++
		}
		for term := range counts[i] {
			df[term]++
		}
	}

	vocab := v.vocabulary(df, n)
	index := make(map[string]int, len(vocab))
	for j, term := range vocab {
		index[term] = j
	}

	rows := make([][]float64, n)
	for i := range texts {
		row := make([]float64, len(vocab))
		for term, c := range counts[i] {
			if j, ok := index[term]; ok {
				idf := math.Log(float64(1+n)/float64(1+df[term])) + 1
				row[j] = float64(c) * idf
			}
		}
		rows[i] = embed.Normalize(row)
	}
	return newMatrix(ModeLexical, rows, len(vocab), vocab), nil
}

// vocabulary prunes by document frequency, relaxing the bounds when they
// would leave nothing, then caps and sorts the result.
func (v *TFIDF) vocabulary(df map[string]int, n int) []string {
	minDF := 1
	if n >= 2*v.opts.MinDF {
		minDF = v.opts.MinDF
	}
	maxDF := n
	if n > 2 {
		maxDF = int(math.Floor(v.opts.MaxDF * float64(n)))
	}

	terms := prune(df, minDF, maxDF)
	if len(terms) == 0 {
		terms = prune(df, minDF, n)
	}
	if len(terms) == 0 {
		terms = prune(df, 1, n)
	}

	if len(terms) > v.opts.MaxFeatures {
		sort.Slice(terms, func(a, b int) bool {
			if df[terms[a]] != df[terms[b]] {
				return df[terms[a]] > df[terms[b]]
			}
			return terms[a] < terms[b]
		})
		terms = terms[:v.opts.MaxFeatures]
	}
	sort.Strings(terms)
	return terms
}

func prune(df map[string]int, minDF, maxDF int) []string {
	var out []string
	for term, d := range df {
		if d >= minDF && d <= maxDF {
			out = append(out, term)
		}
	}
	return out
}
