package classify

import (
	"context"
	"math"
	"runtime"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/tidings/pkg/tidings/ingest"
	"github.com/cognicore/tidings/pkg/tidings/langdetect"
	"github.com/cognicore/tidings/pkg/tidings/lexicon"
)

// DefaultSaturation is the number of keyword hits that yields a full keyword score.
const DefaultSaturation = 3

// Options configure a Classifier. Zero values select the defaults.
type Options struct {
	Method   ScoringMethod // default Lexical
	Anchor   AnchorRule    // default DefaultAnchorRule
	Negative NegativeRule  // default DefaultNegativeRule

	Saturation       int
	LanguageWeights  map[string]float64 // multiplies keyword scores per item language
	AllowedLanguages []string           // empty allows every language
	Workers          int                // default GOMAXPROCS

	Pipeline *ingest.Pipeline     // default: no stop words, lexicon synonyms only
	Detector *langdetect.Detector // used when an item has no language
	Logger   zerolog.Logger
}

// Result is the classification of one text.
type Result struct {
	Scores     map[string]float64 // combined score for every topic
	Similarity map[string]float64 // embedding similarity, only when computed
	Keywords   []string           // keywords and anchors that matched assigned topics
	Degraded   bool               // semantic scoring was requested but unavailable

	labels []string
}

// Labels returns the topics whose score reached their threshold, sorted.
func (r Result) Labels() []string {
	out := make([]string, len(r.labels))
	copy(out, r.labels)
	return out
}

type compiledTopic struct {
	topic     lexicon.Topic
	keywords  *ingest.Matcher
	byLang    map[string]*ingest.Matcher // global plus language keywords
	anchors   *ingest.Matcher
	negatives *ingest.Matcher
}

// Classifier assigns topic labels to texts. It is read-only after New and
// safe for concurrent use.
type Classifier struct {
	topics  []compiledTopic
	opts    Options
	allowed map[string]bool
	log     zerolog.Logger
}

// New compiles the lexicon's topics for matching.
func New(lex *lexicon.Lexicon, opts Options) (*Classifier, error) {
	if opts.Method == nil {
		opts.Method = Lexical{}
	}
	if opts.Anchor.Mode == "" {
		opts.Anchor = DefaultAnchorRule
	}
	if opts.Negative.Mode == "" {
		opts.Negative = DefaultNegativeRule
	}
	if err := opts.Anchor.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Negative.Validate(); err != nil {
		return nil, err
	}
	if opts.Saturation <= 0 {
		opts.Saturation = DefaultSaturation
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Pipeline == nil {
		opts.Pipeline = ingest.NewPipeline(lex, nil, false, 0)
	}

	c := &Classifier{opts: opts, log: opts.Logger}
	if len(opts.AllowedLanguages) > 0 {
		c.allowed = make(map[string]bool, len(opts.AllowedLanguages))
		for _, lang := range opts.AllowedLanguages {
			c.allowed[strings.ToLower(lang)] = true
		}
	}

	norm := opts.Pipeline.Normalizer()
	for _, topic := range lex.Topics() {
		ct := compiledTopic{
			topic:     topic,
			keywords:  ingest.NewMatcher(norm, topic.Keywords, lex.Variants),
			anchors:   ingest.NewMatcher(norm, topic.Anchors, lex.Variants),
			negatives: ingest.NewMatcher(norm, topic.Negatives, nil),
		}
		if len(topic.LangKeywords) > 0 {
			ct.byLang = make(map[string]*ingest.Matcher, len(topic.LangKeywords))
			for _, lang := range topic.Languages() {
				ct.byLang[lang] = ingest.NewMatcher(norm, topic.KeywordsFor(lang), lex.Variants)
			}
		}
		c.topics = append(c.topics, ct)
	}
	return c, nil
}

// Topics returns the classifier's topics in scoring order.
func (c *Classifier) Topics() []lexicon.Topic {
	out := make([]lexicon.Topic, len(c.topics))
	for i, ct := range c.topics {
		out[i] = ct.topic
	}
	return out
}

// Method returns the name of the scoring method in use.
func (c *Classifier) Method() string { return c.opts.Method.Name() }

// evidence is the lexical side of one text's classification.
type evidence struct {
	text      string
	lexical   []float64 // keyword score before the anchor rule
	anchored  []bool
	negatives []bool
	matched   [][]string // per topic: keyword and anchor hits
	skip      bool
}

// Classify scores text against every topic. Empty text yields no labels.
// A failing embedding backend degrades to keyword scoring and sets Degraded.
func (c *Classifier) Classify(ctx context.Context, text, lang string) Result {
	ev := c.lexical(c.opts.Pipeline.Prepare(text), lang)
	return c.finish(ctx, []evidence{ev})[0]
}

// ClassifyItems fills Language, Topics, Keywords and TopicScores of every
// item. Lexical scoring runs on Options.Workers goroutines; results are
// written by index so the output does not depend on scheduling. The only
// error is ctx cancellation.
func (c *Classifier) ClassifyItems(ctx context.Context, items []*ingest.Item) (degraded bool, err error) {
	evs := make([]evidence, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for i := range items {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			it := items[i]
			if it.Language == "" && c.opts.Detector != nil {
				res := c.opts.Detector.Detect(it.Text(c.opts.Pipeline.TextCap()))
				it.Language, it.LanguageConfidence = res.Code, res.Confidence
			}
			evs[i] = c.lexical(c.opts.Pipeline.PrepareItem(it), it.Language)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	results := c.finish(ctx, evs)
	for i := range items {
		res := results[i]
		items[i].Topics = res.Labels()
		items[i].Keywords = res.Keywords
		items[i].TopicScores = res.Scores
		degraded = degraded || res.Degraded
	}
	return degraded, ctx.Err()
}

func (c *Classifier) lexical(p ingest.Processed, lang string) evidence {
	lang = strings.ToLower(lang)
	ev := evidence{
		text:      p.Text,
		lexical:   make([]float64, len(c.topics)),
		anchored:  make([]bool, len(c.topics)),
		negatives: make([]bool, len(c.topics)),
		matched:   make([][]string, len(c.topics)),
	}
	if p.Normalized == "" || (c.allowed != nil && !c.allowed[lang]) {
		ev.skip = true
		return ev
	}

	weight := 1.0
	if w, ok := c.opts.LanguageWeights[lang]; ok {
		weight = w
	}

	for j, ct := range c.topics {
		kw := ct.keywords
		if m, ok := ct.byLang[lang]; ok {
			kw = m
		}
		hits := kw.Match(p.Normalized)
		anchors := ct.anchors.Match(p.Normalized)

		ev.lexical[j] = clamp01(KeywordScore(len(hits), kw.Len(), c.opts.Saturation) * weight)
		ev.anchored[j] = len(anchors) > 0
		ev.negatives[j] = ct.negatives.Any(p.Normalized)
		ev.matched[j] = append(hits, anchors...)
	}
	return ev
}

// finish applies the scoring method, the anchor rule, the negative rule and
// the thresholds. An anchored score never drops below the anchored keyword
// score, whatever the embedding similarity.
func (c *Classifier) finish(ctx context.Context, evs []evidence) []Result {
	var texts []string
	var lexical [][]float64
	var idx []int
	for i, ev := range evs {
		if ev.skip {
			continue
		}
		idx = append(idx, i)
		texts = append(texts, ev.text)
		lexical = append(lexical, ev.lexical)
	}

	var combined, similarity [][]float64
	degraded := false
	if len(texts) > 0 {
		var err error
		combined, similarity, err = c.opts.Method.Blend(ctx, texts, lexical)
		if err != nil {
			c.log.Warn().Err(err).Str("method", c.opts.Method.Name()).Int("items", len(texts)).
				Msg("embedding scoring unavailable, using keywords only")
			combined, similarity, degraded = lexical, nil, true
		}
	}

	results := make([]Result, len(evs))
	for i, ev := range evs {
		results[i] = Result{Scores: make(map[string]float64, len(c.topics))}
		if ev.skip {
			for _, ct := range c.topics {
				results[i].Scores[ct.topic.Name] = 0
			}
		}
	}

	for k, i := range idx {
		ev := evs[i]
		res := &results[i]
		res.Degraded = degraded
		if similarity != nil {
			res.Similarity = make(map[string]float64, len(c.topics))
		}
		seen := make(map[string]bool)
		for j, ct := range c.topics {
			sim := -1.0
			if similarity != nil {
				sim = similarity[k][j]
				if sim >= 0 {
					res.Similarity[ct.topic.Name] = sim
				}
			}
			score := c.opts.Anchor.Apply(combined[k][j], ev.anchored[j])
			if ev.anchored[j] {
				score = math.Max(score, c.opts.Anchor.Apply(ev.lexical[j], true))
			}
			score = c.opts.Negative.Apply(score, ev.negatives[j], sim)
			res.Scores[ct.topic.Name] = score
			if score > 0 && score >= ct.topic.Threshold {
				res.labels = append(res.labels, ct.topic.Name)
				for _, kw := range ev.matched[j] {
					if !seen[kw] {
						seen[kw] = true
						res.Keywords = append(res.Keywords, kw)
					}
				}
			}
		}
		sort.Strings(res.labels)
	}
	return results
}
