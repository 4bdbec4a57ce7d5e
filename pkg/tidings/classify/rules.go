package classify

import (
	"fmt"
	"math"

	"github.com/cognicore/tidings/pkg/tidings/internalerr"
)

// AnchorMode selects how an anchor hit raises a topic score.
type AnchorMode string

const (
	// AnchorSoft moves the score a fraction Boost of the way towards 1.
	AnchorSoft AnchorMode = "soft"
	// AnchorAdd adds Boost, capped at 1.
	AnchorAdd AnchorMode = "add"
	// AnchorMultiply scales the score by 1+Boost, capped at 1. A zero score stays zero.
	AnchorMultiply AnchorMode = "multiply"
)

// AnchorRule boosts a topic score when one of its anchor terms is present.
// For every mode the result is never below the input score.
type AnchorRule struct {
	Mode  AnchorMode
	Boost float64
}

// DefaultAnchorRule is a soft boost of one half: 0 → 0.5, 0.5 → 0.75.
var DefaultAnchorRule = AnchorRule{Mode: AnchorSoft, Boost: 0.5}

// Apply returns the boosted score.
func (r AnchorRule) Apply(score float64, anchorsPresent bool) float64 {
	score = clamp01(score)
	if !anchorsPresent || r.Boost <= 0 {
		return score
	}
	var out float64
	switch r.Mode {
	case AnchorAdd:
		out = score + r.Boost
	case AnchorMultiply:
		out = score * (1 + r.Boost)
	default:
		out = score + clamp01(r.Boost)*(1-score)
	}
	return math.Max(score, clamp01(out))
}

// Validate reports unknown modes and negative boosts.
func (r AnchorRule) Validate() error {
	switch r.Mode {
	case AnchorSoft, AnchorAdd, AnchorMultiply:
	default:
		return &internalerr.ConfigError{Field: "classification.anchor.mode", Reason: fmt.Sprintf("unknown mode %q", r.Mode)}
	}
	if r.Boost < 0 {
		return &internalerr.ConfigError{Field: "classification.anchor.boost", Reason: "must not be negative"}
	}
	if r.Mode == AnchorSoft && r.Boost > 1 {
		return &internalerr.ConfigError{Field: "classification.anchor.boost", Reason: "soft boost must be in [0,1]"}
	}
	return nil
}

// NegativeMode selects how a negative hit lowers a topic score.
type NegativeMode string

const (
	// NegativeZero drops the score to 0.
	NegativeZero NegativeMode = "zero"
	// NegativeSubtract subtracts Penalty, floored at 0.
	NegativeSubtract NegativeMode = "subtract"
	// NegativeScale multiplies the score by Factor.
	NegativeScale NegativeMode = "scale"
)

// NegativeRule suppresses a topic when one of its negative terms is present.
// The result is never above the input score.
//
// When EmbeddingOverride is positive and the item's embedding similarity to
// the topic reaches it, the suppression is skipped: strong semantic evidence
// outweighs a known false-positive pattern.
type NegativeRule struct {
	Mode              NegativeMode
	Penalty           float64
	Factor            float64
	EmbeddingOverride float64
}

// DefaultNegativeRule zeroes the score with no embedding override.
var DefaultNegativeRule = NegativeRule{Mode: NegativeZero, Penalty: 1}

// Apply returns the suppressed score. similarity is the item's embedding
// similarity to the topic, or a negative value when none was computed.
func (r NegativeRule) Apply(score float64, negativesPresent bool, similarity float64) float64 {
	score = clamp01(score)
	if !negativesPresent {
		return score
	}
	if r.EmbeddingOverride > 0 && similarity >= r.EmbeddingOverride {
		return score
	}
	var out float64
	switch r.Mode {
	case NegativeSubtract:
		out = score - r.Penalty
	case NegativeScale:
		out = score * clamp01(r.Factor)
	default:
		out = 0
	}
	return math.Min(score, clamp01(out))
}

// Validate reports unknown modes and out-of-range parameters.
func (r NegativeRule) Validate() error {
	switch r.Mode {
	case NegativeZero, NegativeSubtract, NegativeScale:
	default:
		return &internalerr.ConfigError{Field: "classification.negative.mode", Reason: fmt.Sprintf("unknown mode %q", r.Mode)}
	}
	if r.Penalty < 0 {
		return &internalerr.ConfigError{Field: "classification.negative.penalty", Reason: "must not be negative"}
	}
	if r.Factor < 0 || r.Factor > 1 {
		return &internalerr.ConfigError{Field: "classification.negative.factor", Reason: "must be in [0,1]"}
	}
	if r.EmbeddingOverride < 0 || r.EmbeddingOverride > 1 {
		return &internalerr.ConfigError{Field: "classification.negative.embedding_override", Reason: "must be in [0,1]"}
	}
	return nil
}

// KeywordScore maps a hit count to [0,1]: hits over the smaller of the
// keyword count and saturation, capped at 1.
func KeywordScore(hits, keywords, saturation int) float64 {
	if hits <= 0 || keywords <= 0 {
		return 0
	}
	denom := keywords
	if saturation > 0 && saturation < denom {
		denom = saturation
	}
	return math.Min(1, float64(hits)/float64(denom))
}

// Blend mixes a lexical score with an embedding similarity. weight is the
// share given to the similarity.
func Blend(lexical, similarity, weight float64) float64 {
	w := clamp01(weight)
	return clamp01((1-w)*clamp01(lexical) + w*clamp01(similarity))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
