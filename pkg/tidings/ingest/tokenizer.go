package ingest

import (
	"strings"
	"unicode"

	"github.com/cognicore/tidings/pkg/tidings/lexicon"
	"github.com/cognicore/tidings/pkg/tidings/stoplist"
)

// Tokenizer handles text tokenization and normalization
type Tokenizer struct {
	stops   *stoplist.Manager
	lexicon *lexicon.Lexicon // Optional: for synonym normalization
}

// NewTokenizer creates a tokenizer filtering the given stop words. stops may be nil.
func NewTokenizer(stops *stoplist.Manager) *Tokenizer {
	return &Tokenizer{stops: stops}
}

// SetLexicon assigns a lexicon for synonym normalization.
// When set, tokens are replaced by their canonical forms ("crypto-locker" → "ransomware").
func (t *Tokenizer) SetLexicon(lex *lexicon.Lexicon) {
	t.lexicon = lex
}

// Tokenize splits text into lowercase tokens and removes stop words of every
// known language.
func (t *Tokenizer) Tokenize(text string) []string {
	return t.TokenizeLang(text, "")
}

// TokenizeLang is Tokenize restricted to the stop words of lang. An empty or
// unknown lang uses every list.
func (t *Tokenizer) TokenizeLang(text, lang string) []string {
	return t.Filter(Words(text), lang)
}

// Filter applies normalization and stop word removal to already split words.
func (t *Tokenizer) Filter(words []string, lang string) []string {
	var tokens []string
	for _, w := range words {
		if word := t.processToken(w, lang); word != "" {
			tokens = append(tokens, word)
		}
	}
	return tokens
}

// Words splits text into lowercase words without any filtering. Letters,
// digits, hyphens and apostrophes inside a word are kept together.
func Words(text string) []string {
	var words []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			if w := cleanToken(current.String()); w != "" {
				words = append(words, w)
			}
			current.Reset()
		}
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.Is(unicode.Mn, r) || r == '-' || r == '\'' {
			current.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()
	return words
}

// processToken applies lexicon normalization and stopword filtering.
func (t *Tokenizer) processToken(word, lang string) string {
	if len([]rune(word)) <= 1 {
		return ""
	}

	// Pure numbers carry little topical signal; "gpt-4" or "cve-2024" stay.
	if isNumericOnly(word) {
		return ""
	}

	if t.lexicon != nil {
		word = t.lexicon.Normalize(word)
	}

	if t.stops != nil && t.stops.IsStopIn(lang, word) {
		return ""
	}
	return word
}

// cleanToken strips leading/trailing hyphens and apostrophes and collapses
// repeated hyphens.
func cleanToken(token string) string {
	token = strings.Trim(token, "-'")
	for strings.Contains(token, "--") {
		token = strings.ReplaceAll(token, "--", "-")
	}
	return token
}

func isNumericOnly(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '-' {
			return false
		}
	}
	return true
}
