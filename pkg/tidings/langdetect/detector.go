package langdetect

import (
	"strings"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"

	"github.com/cognicore/tidings/pkg/tidings/ingest"
	"github.com/cognicore/tidings/pkg/tidings/stoplist"
)

// Unknown is returned when no method produces an answer.
const Unknown = "und"

// Method names reported in Result.
const (
	MethodTrigram  = "trigram"
	MethodStopword = "stopword"
	MethodNone     = "none"
)

// Options tune the detector. Zero values select the defaults.
type Options struct {
	MinConfidence float64 // trigram answers below this go to the fallback (default 0.5)
	MinRunes      int     // shorter texts go to the fallback (default 20)
	MinVoteShare  float64 // stop word share needed by the fallback (default 0.1)
	TextCap       int     // runes examined (default ingest.DefaultTextCap)
}

// Result is a detected language.
type Result struct {
	Code       string // ISO 639-1, or Unknown
	Confidence float64
	Method     string
}

// Detector guesses the language of a text. It never fails: ambiguous input
// falls back to a stop word vote and finally to Unknown.
type Detector struct {
	opts  Options
	stops *stoplist.Manager
}

// New creates a detector. stops may be nil, in which case the built-in lists
// are used for the fallback vote.
func New(stops *stoplist.Manager, opts Options) *Detector {
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = 0.5
	}
	if opts.MinRunes <= 0 {
		opts.MinRunes = 20
	}
	if opts.MinVoteShare <= 0 {
		opts.MinVoteShare = 0.1
	}
	if opts.TextCap <= 0 {
		opts.TextCap = ingest.DefaultTextCap
	}
	if stops == nil {
		stops = stoplist.NewManager(nil)
	}
	return &Detector{opts: opts, stops: stops}
}

// Detect returns the language of text.
func (d *Detector) Detect(text string) Result {
	text = strings.TrimSpace(ingest.Truncate(text, d.opts.TextCap))
	if text == "" {
		return Result{Code: Unknown, Method: MethodNone}
	}

	primary, primaryOK := d.trigram(text)
	if primaryOK && (primary.Confidence >= d.opts.MinConfidence) && utf8.RuneCountInString(text) >= d.opts.MinRunes {
		return primary
	}

	if lang, share := d.stops.Vote(ingest.Words(text)); lang != "" && share >= d.opts.MinVoteShare {
		if share > 1 {
			share = 1
		}
		return Result{Code: lang, Confidence: share, Method: MethodStopword}
	}

	if primaryOK {
		return primary
	}
	return Result{Code: Unknown, Method: MethodNone}
}

func (d *Detector) trigram(text string) (Result, bool) {
	info := whatlanggo.Detect(text)
	if info.Script == nil || info.Lang < 0 {
		return Result{}, false
	}
	code := info.Lang.Iso6391()
	if code == "" {
		return Result{}, false
	}
	conf := info.Confidence
	if info.IsReliable() && conf < d.opts.MinConfidence {
		conf = d.opts.MinConfidence
	}
	return Result{Code: code, Confidence: conf, Method: MethodTrigram}, true
}
