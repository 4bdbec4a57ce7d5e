package lexicon

import (
	"sort"
	"strings"

	"github.com/cognicore/tidings/pkg/tidings/internalerr"
)

// Lexicon is the static vocabulary of a run:
// - Topics: keyword, anchor, negative and seed sets plus decision thresholds
// - Synonyms: variants that count as the canonical keyword (crypto-locker ↔ ransomware)
// - Phrases: multi-token forms collapsed into one canonical token (zero day → zero-day)
//
// A Lexicon is built once from configuration and is read-only afterwards, so
// it is safe to share between classifier workers.
type Lexicon struct {
	topics map[string]Topic
	names  []string

	// canonical -> all variants (canonical first)
	synonyms map[string][]string

	// variant -> canonical
	reverseIndex map[string]string

	phrases []Phrase
}

// Phrase maps spelling variants of a multi-word expression to one canonical token.
type Phrase struct {
	Canonical string   `yaml:"canonical"`
	Variants  []string `yaml:"variants"`
}

// File is the YAML shape shared by standalone lexicon files and the main
// configuration file.
type File struct {
	Topics   map[string]TopicSpec `yaml:"topics"`
	Synonyms []Phrase             `yaml:"synonyms"`
	Phrases  []Phrase             `yaml:"phrases"`
}

// New creates an empty lexicon.
func New() *Lexicon {
	return &Lexicon{
		topics:       make(map[string]Topic),
		synonyms:     make(map[string][]string),
		reverseIndex: make(map[string]string),
	}
}

// Build validates every topic in f and assembles a lexicon from it.
func Build(f File) (*Lexicon, error) {
	lex := New()

	for _, entry := range f.Synonyms {
		lex.AddSynonymGroup(entry.Canonical, entry.Variants)
	}
	for _, p := range f.Phrases {
		lex.AddPhrase(p)
	}

	names := make([]string, 0, len(f.Topics))
	for name := range f.Topics {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		topic := f.Topics[name].Topic(name)
		if err := lex.AddTopic(topic); err != nil {
			return nil, err
		}
	}
	return lex, nil
}

// AddTopic registers a topic after validating it.
func (l *Lexicon) AddTopic(t Topic) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if _, exists := l.topics[t.Name]; exists {
		return &internalerr.ConfigError{Topic: t.Name, Reason: "defined twice"}
	}
	l.topics[t.Name] = t
	l.names = append(l.names, t.Name)
	sort.Strings(l.names)
	return nil
}

// Topic returns the named topic.
func (l *Lexicon) Topic(name string) (Topic, bool) {
	t, ok := l.topics[name]
	return t, ok
}

// Has reports whether name is a configured topic.
func (l *Lexicon) Has(name string) bool {
	_, ok := l.topics[name]
	return ok
}

// Names returns the configured topic names in sorted order.
func (l *Lexicon) Names() []string {
	out := make([]string, len(l.names))
	copy(out, l.names)
	return out
}

// Topics returns all topics sorted by name.
func (l *Lexicon) Topics() []Topic {
	out := make([]Topic, 0, len(l.names))
	for _, name := range l.names {
		out = append(out, l.topics[name])
	}
	return out
}

// AddSynonymGroup adds a synonym group with a canonical form and its variants.
// The canonical form is always included as the first entry in the variants list.
// If the group already exists, old reverse index entries are cleaned up first.
func (l *Lexicon) AddSynonymGroup(canonical string, variants []string) {
	canonical = strings.ToLower(strings.TrimSpace(canonical))
	if canonical == "" {
		return
	}

	if oldVariants, exists := l.synonyms[canonical]; exists {
		for _, oldV := range oldVariants {
			delete(l.reverseIndex, oldV)
		}
	}

	normalized := make([]string, 0, len(variants)+1)
	seen := map[string]bool{canonical: true}
	normalized = append(normalized, canonical)
	for _, v := range variants {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" && !seen[v] {
			normalized = append(normalized, v)
			seen[v] = true
		}
	}

	l.synonyms[canonical] = normalized
	for _, v := range normalized {
		l.reverseIndex[v] = canonical
	}
}

// Normalize returns the canonical form of a token.
// If the token is not in the lexicon, returns the token itself.
func (l *Lexicon) Normalize(token string) string {
	token = strings.ToLower(token)
	if canonical, ok := l.reverseIndex[token]; ok {
		return canonical
	}
	return token
}

// Variants returns all known variants of a token, canonical form first.
// An unknown token yields a slice holding only the token.
func (l *Lexicon) Variants(token string) []string {
	token = strings.ToLower(token)
	if variants, ok := l.synonyms[token]; ok {
		return variants
	}
	if canonical, ok := l.reverseIndex[token]; ok {
		if variants, ok := l.synonyms[canonical]; ok {
			return variants
		}
	}
	return []string{token}
}

// AddPhrase registers a multi-token phrase.
func (l *Lexicon) AddPhrase(p Phrase) {
	if strings.TrimSpace(p.Canonical) == "" {
		return
	}
	l.phrases = append(l.phrases, p)
}

// Phrases returns the registered multi-token phrases in insertion order.
func (l *Lexicon) Phrases() []Phrase {
	out := make([]Phrase, len(l.phrases))
	copy(out, l.phrases)
	return out
}

// Stats returns statistics about the lexicon contents.
func (l *Lexicon) Stats() Stats {
	totalVariants := 0
	for _, variants := range l.synonyms {
		totalVariants += len(variants)
	}
	keywords := 0
	for _, t := range l.topics {
		keywords += len(t.Keywords)
		for _, kws := range t.LangKeywords {
			keywords += len(kws)
		}
	}
	return Stats{
		Topics:        len(l.topics),
		Keywords:      keywords,
		SynonymGroups: len(l.synonyms),
		TotalVariants: totalVariants,
		Phrases:       len(l.phrases),
	}
}

// Stats holds statistics about lexicon contents.
type Stats struct {
	Topics        int
	Keywords      int // global plus per-language keywords over all topics
	SynonymGroups int
	TotalVariants int
	Phrases       int
}
