package lexicon

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cognicore/tidings/pkg/tidings/internalerr"
)

// Defaults applied when a topic leaves a value unset.
const (
	DefaultThreshold       = 0.3
	DefaultEmbeddingWeight = 0.4
)

// Topic is a named category and everything needed to decide membership.
type Topic struct {
	Name         string
	Keywords     []string
	LangKeywords map[string][]string // extra keywords that only apply to items in that language
	Anchors      []string            // high-precision terms that boost the score
	Negatives    []string            // terms that suppress the topic
	Seeds        []string            // phrases describing the topic for embedding similarity

	Threshold       float64
	EmbeddingWeight float64
}

// TopicSpec is the YAML form of a topic. Pointer fields distinguish an
// explicit zero from an omitted value.
type TopicSpec struct {
	Keywords        []string            `yaml:"keywords"`
	KeywordsByLang  map[string][]string `yaml:"keywords_by_lang"`
	Anchors         []string            `yaml:"anchors"`
	Negatives       []string            `yaml:"negatives"`
	Seeds           []string            `yaml:"seeds"`
	Threshold       *float64            `yaml:"threshold"`
	EmbeddingWeight *float64            `yaml:"embedding_weight"`
}

// Topic converts the spec into a Topic, filling defaults.
func (s TopicSpec) Topic(name string) Topic {
	t := Topic{
		Name:            name,
		Keywords:        cleanTerms(s.Keywords),
		Anchors:         cleanTerms(s.Anchors),
		Negatives:       cleanTerms(s.Negatives),
		Seeds:           cleanTerms(s.Seeds),
		Threshold:       DefaultThreshold,
		EmbeddingWeight: DefaultEmbeddingWeight,
	}
	if len(s.KeywordsByLang) > 0 {
		t.LangKeywords = make(map[string][]string, len(s.KeywordsByLang))
		for lang, kws := range s.KeywordsByLang {
			t.LangKeywords[strings.ToLower(lang)] = cleanTerms(kws)
		}
	}
	if s.Threshold != nil {
		t.Threshold = *s.Threshold
	}
	if s.EmbeddingWeight != nil {
		t.EmbeddingWeight = *s.EmbeddingWeight
	}
	return t
}

// Validate checks that the topic can be scored at all and that its numeric
// settings are in range.
func (t Topic) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return &internalerr.ConfigError{Field: "topics", Reason: "topic name is empty"}
	}
	if len(t.Keywords) == 0 && len(t.Anchors) == 0 && len(t.Seeds) == 0 && !t.hasLangKeywords() {
		return &internalerr.ConfigError{Topic: t.Name, Field: "keywords", Reason: "needs at least one keyword, anchor or seed"}
	}
	if t.Threshold < 0 || t.Threshold > 1 {
		return &internalerr.ConfigError{Topic: t.Name, Field: "threshold", Reason: fmt.Sprintf("%v not in [0,1]", t.Threshold)}
	}
	if t.EmbeddingWeight < 0 || t.EmbeddingWeight > 1 {
		return &internalerr.ConfigError{Topic: t.Name, Field: "embedding_weight", Reason: fmt.Sprintf("%v not in [0,1]", t.EmbeddingWeight)}
	}
	return nil
}

func (t Topic) hasLangKeywords() bool {
	for _, kws := range t.LangKeywords {
		if len(kws) > 0 {
			return true
		}
	}
	return false
}

// KeywordsFor returns the global keywords followed by the keywords specific
// to lang, without duplicates.
func (t Topic) KeywordsFor(lang string) []string {
	extra := t.LangKeywords[strings.ToLower(lang)]
	out := make([]string, 0, len(t.Keywords)+len(extra))
	seen := make(map[string]bool, cap(out))
	for _, list := range [][]string{t.Keywords, extra} {
		for _, kw := range list {
			key := strings.ToLower(kw)
			if !seen[key] {
				seen[key] = true
				out = append(out, kw)
			}
		}
	}
	return out
}

// SeedPhrases returns the phrases used to build the topic's embedding
// reference: seeds, anchors and keywords in that order, without duplicates.
func (t Topic) SeedPhrases() []string {
	out := make([]string, 0, len(t.Seeds)+len(t.Anchors)+len(t.Keywords))
	seen := make(map[string]bool, cap(out))
	for _, list := range [][]string{t.Seeds, t.Anchors, t.Keywords} {
		for _, p := range list {
			key := strings.ToLower(p)
			if !seen[key] {
				seen[key] = true
				out = append(out, p)
			}
		}
	}
	return out
}

// Languages returns the languages with dedicated keywords, sorted.
func (t Topic) Languages() []string {
	out := make([]string, 0, len(t.LangKeywords))
	for lang := range t.LangKeywords {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

func cleanTerms(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
