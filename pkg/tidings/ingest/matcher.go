package ingest

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// LongKeywordMin is the rune length from which a keyword matches as a plain
// substring. Shorter keywords need word boundaries so "ss" does not hit
// "class".
const LongKeywordMin = 6

const softBoundaryChars = " -/._'\""

// Term is one keyword together with the spellings that count as it.
type Term struct {
	Keyword  string   // as configured, reported on a hit
	Variants []string // normalized spellings, keyword first
}

// Matcher finds which of a fixed set of keywords occur in normalized text.
type Matcher struct {
	terms []Term
}

// NewMatcher compiles keywords. variants may be nil; otherwise it returns
// every spelling of a keyword (synonyms), including the keyword itself.
func NewMatcher(norm *Normalizer, keywords []string, variants func(string) []string) *Matcher {
	m := &Matcher{terms: make([]Term, 0, len(keywords))}
	seen := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		key := norm.Normalize(kw)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		term := Term{Keyword: kw, Variants: []string{key}}
		if variants != nil {
			for _, v := range variants(kw) {
				v = norm.Normalize(v)
				if v != "" && v != key {
					term.Variants = append(term.Variants, v)
				}
			}
		}
		m.terms = append(m.terms, term)
	}
	return m
}

// Len returns the number of distinct keywords.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.terms)
}

// Match returns the configured keywords present in text, in keyword order.
// text must already be normalized.
func (m *Matcher) Match(text string) []string {
	if m == nil || text == "" {
		return nil
	}
	var hits []string
	for _, term := range m.terms {
		for _, v := range term.Variants {
			if ContainsKeyword(text, v) {
				hits = append(hits, term.Keyword)
				break
			}
		}
	}
	return hits
}

// Any reports whether at least one keyword occurs in text.
func (m *Matcher) Any(text string) bool {
	if m == nil || text == "" {
		return false
	}
	for _, term := range m.terms {
		for _, v := range term.Variants {
			if ContainsKeyword(text, v) {
				return true
			}
		}
	}
	return false
}

// ContainsKeyword reports whether kw occurs in text. Both must be normalized.
// Long or compound keywords match anywhere; short plain ones only as whole
// words.
func ContainsKeyword(text, kw string) bool {
	if kw == "" {
		return false
	}
	if strings.ContainsAny(kw, softBoundaryChars) || utf8.RuneCountInString(kw) >= LongKeywordMin {
		return strings.Contains(text, kw)
	}

	offset := 0
	for {
		idx := strings.Index(text[offset:], kw)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(kw)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}
