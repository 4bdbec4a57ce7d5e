package classify

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cognicore/tidings/pkg/tidings/internalerr"
)

func TestAnchorRuleApply(t *testing.T) {
	tests := []struct {
		name    string
		rule    AnchorRule
		score   float64
		present bool
		want    float64
	}{
		{name: "absent leaves score", rule: DefaultAnchorRule, score: 0.2, present: false, want: 0.2},
		{name: "soft from zero", rule: DefaultAnchorRule, score: 0, present: true, want: 0.5},
		{name: "soft from half", rule: DefaultAnchorRule, score: 0.5, present: true, want: 0.75},
		{name: "soft at one", rule: DefaultAnchorRule, score: 1, present: true, want: 1},
		{name: "add", rule: AnchorRule{Mode: AnchorAdd, Boost: 0.3}, score: 0.4, present: true, want: 0.7},
		{name: "add capped", rule: AnchorRule{Mode: AnchorAdd, Boost: 0.8}, score: 0.4, present: true, want: 1},
		{name: "multiply", rule: AnchorRule{Mode: AnchorMultiply, Boost: 0.5}, score: 0.4, present: true, want: 0.6},
		{name: "multiply zero stays zero", rule: AnchorRule{Mode: AnchorMultiply, Boost: 0.5}, score: 0, present: true, want: 0},
		{name: "zero boost", rule: AnchorRule{Mode: AnchorAdd}, score: 0.4, present: true, want: 0.4},
		{name: "input clamped", rule: DefaultAnchorRule, score: 1.7, present: false, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.rule.Apply(tt.score, tt.present), 1e-12)
		})
	}
}

func TestAnchorRuleMonotonic(t *testing.T) {
	rules := []AnchorRule{
		DefaultAnchorRule,
		{Mode: AnchorSoft, Boost: 1},
		{Mode: AnchorAdd, Boost: 0.2},
		{Mode: AnchorMultiply, Boost: 3},
	}
	for _, rule := range rules {
		for s := 0.0; s <= 1.0; s += 0.05 {
			assert.GreaterOrEqual(t, rule.Apply(s, true), rule.Apply(s, false), "%+v at %v", rule, s)
		}
	}
}

func TestNegativeRuleApply(t *testing.T) {
	tests := []struct {
		name    string
		rule    NegativeRule
		score   float64
		present bool
		sim     float64
		want    float64
	}{
		{name: "absent leaves score", rule: DefaultNegativeRule, score: 0.8, present: false, sim: -1, want: 0.8},
		{name: "zero", rule: DefaultNegativeRule, score: 0.8, present: true, sim: -1, want: 0},
		{name: "subtract", rule: NegativeRule{Mode: NegativeSubtract, Penalty: 0.3}, score: 0.8, present: true, sim: -1, want: 0.5},
		{name: "subtract floored", rule: NegativeRule{Mode: NegativeSubtract, Penalty: 2}, score: 0.8, present: true, sim: -1, want: 0},
		{name: "scale", rule: NegativeRule{Mode: NegativeScale, Factor: 0.25}, score: 0.8, present: true, sim: -1, want: 0.2},
		{name: "override by strong similarity", rule: NegativeRule{Mode: NegativeZero, EmbeddingOverride: 0.47}, score: 0.8, present: true, sim: 0.5, want: 0.8},
		{name: "weak similarity does not override", rule: NegativeRule{Mode: NegativeZero, EmbeddingOverride: 0.47}, score: 0.8, present: true, sim: 0.4, want: 0},
		{name: "no similarity computed", rule: NegativeRule{Mode: NegativeZero, EmbeddingOverride: 0.47}, score: 0.8, present: true, sim: -1, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.rule.Apply(tt.score, tt.present, tt.sim), 1e-12)
		})
	}
}

func TestNegativeRuleMonotonic(t *testing.T) {
	rules := []NegativeRule{
		DefaultNegativeRule,
		{Mode: NegativeSubtract, Penalty: 0.1},
		{Mode: NegativeScale, Factor: 0.9},
		{Mode: NegativeScale, Factor: 1},
	}
	for _, rule := range rules {
		for s := 0.0; s <= 1.0; s += 0.05 {
			assert.LessOrEqual(t, rule.Apply(s, true, 0.3), rule.Apply(s, false, 0.3), "%+v at %v", rule, s)
		}
	}
}

func TestRuleValidate(t *testing.T) {
	assert.NoError(t, DefaultAnchorRule.Validate())
	assert.NoError(t, DefaultNegativeRule.Validate())

	bad := []error{
		AnchorRule{Mode: "double", Boost: 1}.Validate(),
		AnchorRule{Mode: AnchorAdd, Boost: -1}.Validate(),
		AnchorRule{Mode: AnchorSoft, Boost: 1.5}.Validate(),
		NegativeRule{Mode: "drop"}.Validate(),
		NegativeRule{Mode: NegativeSubtract, Penalty: -0.1}.Validate(),
		NegativeRule{Mode: NegativeScale, Factor: 2}.Validate(),
		NegativeRule{Mode: NegativeZero, EmbeddingOverride: 1.2}.Validate(),
	}
	for i, err := range bad {
		assert.ErrorIs(t, err, internalerr.ErrInvalidConfig, "case %d", i)
	}
}

func TestKeywordScore(t *testing.T) {
	assert.Equal(t, 0.0, KeywordScore(0, 5, 3))
	assert.Equal(t, 0.0, KeywordScore(2, 0, 3))
	assert.Equal(t, 1.0, KeywordScore(2, 2, 3), "all keywords of a small set")
	assert.InDelta(t, 1.0/3.0, KeywordScore(1, 10, 3), 1e-12)
	assert.Equal(t, 1.0, KeywordScore(5, 10, 3), "saturates")
	assert.InDelta(t, 0.1, KeywordScore(1, 10, 0), 1e-12, "no saturation")
}

func TestBlend(t *testing.T) {
	assert.InDelta(t, 0.5, Blend(0.5, 0.9, 0), 1e-12)
	assert.InDelta(t, 0.9, Blend(0.5, 0.9, 1), 1e-12)
	assert.InDelta(t, 0.66, Blend(0.5, 0.9, 0.4), 1e-12)
	assert.InDelta(t, 0.3, Blend(0.5, -0.4, 0.4), 1e-12, "negative similarity counts as zero")
	assert.Equal(t, 0.0, clamp01(math.NaN()))
}
