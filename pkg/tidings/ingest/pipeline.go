package ingest

import (
	"github.com/cognicore/tidings/pkg/tidings/lexicon"
	"github.com/cognicore/tidings/pkg/tidings/stoplist"
)

// Pipeline turns raw item text into the two forms scoring needs:
// normalized text for keyword matching, and tokens for vectorizing.
//
// text → strip markup → normalize → split → phrase recognition → stop words
type Pipeline struct {
	normalizer *Normalizer
	tokenizer  *Tokenizer
	parser     *PhraseParser
	textCap    int
}

// NewPipeline creates a pipeline. lex and stops may be nil.
func NewPipeline(lex *lexicon.Lexicon, stops *stoplist.Manager, leet bool, textCap int) *Pipeline {
	tok := NewTokenizer(stops)
	var parser *PhraseParser
	if lex != nil {
		tok.SetLexicon(lex)
		parser = NewPhraseParser(lex.Phrases())
	}
	if textCap <= 0 {
		textCap = DefaultTextCap
	}
	return &Pipeline{
		normalizer: NewNormalizer(leet),
		tokenizer:  tok,
		parser:     parser,
		textCap:    textCap,
	}
}

// Processed is an item's text after preprocessing.
type Processed struct {
	Text       string // markup-free and capped, original casing
	Normalized string
	Tokens     []string
}

// Process runs one text through the pipeline.
func (p *Pipeline) Process(text, lang string) Processed {
	text = Truncate(StripHTML(text), p.textCap)
	return p.process(text, lang)
}

// ProcessItem is Process over an item's title and body.
func (p *Pipeline) ProcessItem(it *Item) Processed {
	return p.process(it.Text(p.textCap), it.Language)
}

func (p *Pipeline) process(text, lang string) Processed {
	normalized := p.normalizer.Normalize(text)
	// Phrases are matched before stop word removal so "breach of contract"
	// survives as one token.
	tokens := p.tokenizer.Filter(p.parser.Parse(Words(normalized)), lang)
	return Processed{Text: text, Normalized: normalized, Tokens: tokens}
}

// Prepare is Process without tokenization: Tokens is left empty. Keyword
// matching only needs the normalized text.
func (p *Pipeline) Prepare(text string) Processed {
	text = Truncate(StripHTML(text), p.textCap)
	return Processed{Text: text, Normalized: p.normalizer.Normalize(text)}
}

// PrepareItem is Prepare over an item's title and body.
func (p *Pipeline) PrepareItem(it *Item) Processed {
	text := it.Text(p.textCap)
	return Processed{Text: text, Normalized: p.normalizer.Normalize(text)}
}

// Tokens is a shortcut for Process(text, lang).Tokens.
func (p *Pipeline) Tokens(text, lang string) []string {
	return p.Process(text, lang).Tokens
}

// Normalizer returns the normalizer used for keyword matching so keywords and
// text go through the same transformation.
func (p *Pipeline) Normalizer() *Normalizer { return p.normalizer }

// TextCap returns the rune limit applied to texts.
func (p *Pipeline) TextCap() int { return p.textCap }
