package ingest

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var punctuation = strings.NewReplacer(
	"—", "-", // em dash
	"–", "-", // en dash
	"’", "'",
	"‘", "'",
	"“", `"`,
	"”", `"`,
	" ", " ",
)

var leet = strings.NewReplacer(
	"0", "o", "1", "i", "3", "e", "4", "a", "5", "s", "7", "t", "@", "a", "$", "s",
)

// Normalizer brings text and keywords into one comparable form: NFKC,
// unified dashes and quotes, Unicode case folding and collapsed whitespace.
type Normalizer struct {
	leet bool
}

// NewNormalizer returns a normalizer. With leet enabled common digit and
// symbol substitutions (r4ns0mw4re) are undone as well.
func NewNormalizer(leet bool) *Normalizer {
	return &Normalizer{leet: leet}
}

// Normalize returns the normalized form of s.
func (n *Normalizer) Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(s)
	s = punctuation.Replace(s)
	// Casers keep state between calls; one per call keeps Normalize safe for
	// concurrent use.
	s = cases.Fold().String(s)
	if n != nil && n.leet {
		s = leet.Replace(s)
	}
	return strings.Join(strings.Fields(s), " ")
}
