package ingest

import (
	"strings"

	"github.com/cognicore/tidings/pkg/tidings/lexicon"
)

// PhraseParser collapses multi-word phrases into one canonical token.
type PhraseParser struct {
	dict   map[string]string // space-joined words → canonical token
	maxLen int
}

// NewPhraseParser builds a parser from lexicon phrases. Canonical forms and
// variants are split into words the same way the tokenizer does, so
// "Zero Day" and "zero-day" are looked up as the tokens they produce.
func NewPhraseParser(phrases []lexicon.Phrase) *PhraseParser {
	p := &PhraseParser{dict: make(map[string]string), maxLen: 1}
	for _, ph := range phrases {
		canonical := strings.ToLower(strings.TrimSpace(ph.Canonical))
		if canonical == "" {
			continue
		}
		p.add(canonical, canonical)
		for _, v := range ph.Variants {
			p.add(v, canonical)
		}
	}
	return p
}

func (p *PhraseParser) add(form, canonical string) {
	words := Words(form)
	if len(words) == 0 {
		return
	}
	p.dict[strings.Join(words, " ")] = canonical
	if len(words) > p.maxLen {
		p.maxLen = len(words)
	}
}

// Parse applies greedy longest-match to recognize multi-token phrases.
// Single tokens with a mapping are replaced by their canonical form too.
func (p *PhraseParser) Parse(tokens []string) []string {
	if p == nil || len(p.dict) == 0 {
		return tokens
	}

	result := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		longest := p.maxLen
		if remaining := len(tokens) - i; longest > remaining {
			longest = remaining
		}

		matched := false
		for n := longest; n >= 1; n-- {
			if canonical, ok := p.dict[strings.Join(tokens[i:i+n], " ")]; ok {
				result = append(result, canonical)
				i += n
				matched = true
				break
			}
		}
		if !matched {
			result = append(result, tokens[i])
			i++
		}
	}
	return result
}
