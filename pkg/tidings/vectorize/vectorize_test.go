package vectorize

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/cognicore/tidings/pkg/tidings/embed"
	"github.com/cognicore/tidings/pkg/tidings/ingest"
	"github.com/cognicore/tidings/pkg/tidings/internalerr"
	"github.com/cognicore/tidings/pkg/tidings/stoplist"
)

func newTFIDF(opts TFIDFOptions) *TFIDF {
	return NewTFIDF(ingest.NewPipeline(nil, stoplist.NewManager(nil), false, 0), opts)
}

func column(t *testing.T, m *Matrix, term string) int {
	t.Helper()
	for j, tt := range m.Terms {
		if tt == term {
			return j
		}
	}
	t.Fatalf("term %q not in vocabulary %v", term, m.Terms)
	return -1
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("semantic")
	require.NoError(t, err)
	assert.Equal(t, ModeSemantic, m)
	_, err = ParseMode("neural")
	assert.Error(t, err)
}

func TestTFIDFRowsFollowInput(t *testing.T) {
	texts := []string{
		"ransomware attack hospital network",
		"ransomware attack city council",
		"pipeline explosion refinery fire",
		"pipeline explosion refinery evacuation",
		"ransomware attack hospital records",
	}
	v := newTFIDF(TFIDFOptions{})

	m, err := v.FitTransform(context.Background(), texts)
	require.NoError(t, err)
	assert.Equal(t, ModeLexical, m.Mode)
	assert.Equal(t, len(texts), m.Len())
	r, c := m.Rows.Dims()
	assert.Equal(t, len(texts), r)
	assert.Equal(t, len(m.Terms), c)
	assert.True(t, sortedStrings(m.Terms))

	hospital := column(t, m, "hospital")
	refinery := column(t, m, "refinery")
	for i, text := range texts {
		hasHospital := m.Row(i)[hospital] > 0
		hasRefinery := m.Row(i)[refinery] > 0
		assert.Equal(t, containsWord(text, "hospital"), hasHospital, "row %d", i)
		assert.Equal(t, containsWord(text, "refinery"), hasRefinery, "row %d", i)
		assert.InDelta(t, 1.0, floats.Norm(m.Row(i), 2), 1e-9, "row %d is unit length", i)
	}

	// Bigrams with enough support are part of the vocabulary.
	column(t, m, "ransomware attack")
}

func TestTFIDFPruning(t *testing.T) {
	texts := []string{
		"ransomware alpha",
		"ransomware beta",
		"ransomware gamma delta",
		"ransomware gamma delta",
		"ransomware epsilon",
	}
	m, err := newTFIDF(TFIDFOptions{NoBigrams: true}).FitTransform(context.Background(), texts)
	require.NoError(t, err)

	// "ransomware" is in every document (above max_df), singletons are below min_df.
	assert.Equal(t, []string{"delta", "gamma"}, m.Terms)
}

func TestTFIDFRelaxesEmptyVocabulary(t *testing.T) {
	texts := []string{"alpha", "beta", "gamma", "delta"}
	m, err := newTFIDF(TFIDFOptions{}).FitTransform(context.Background(), texts)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "delta", "gamma"}, m.Terms)
}

func TestTFIDFMaxFeatures(t *testing.T) {
	texts := []string{"common rare1x", "common rare2x", "common shared", "shared extra"}
	m, err := newTFIDF(TFIDFOptions{MaxFeatures: 2, MinDF: 1, MaxDF: 1, NoBigrams: true}).FitTransform(context.Background(), texts)
	require.NoError(t, err)
	assert.Equal(t, []string{"common", "shared"}, m.Terms)
}

func TestTFIDFSingleAndEmpty(t *testing.T) {
	v := newTFIDF(TFIDFOptions{})

	one, err := v.FitTransform(context.Background(), []string{"ransomware strikes hospital"})
	require.NoError(t, err)
	assert.Equal(t, 1, one.Len())
	assert.NotEmpty(t, one.Terms)

	none, err := v.FitTransform(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, none.Len())
	assert.Nil(t, none.Rows)

	blank, err := v.FitTransform(context.Background(), []string{"", "the and"})
	require.NoError(t, err)
	assert.Equal(t, 2, blank.Len())
	assert.Zero(t, blank.Dim())
	assert.Empty(t, blank.Row(0))
}

func TestTFIDFDeterministic(t *testing.T) {
	texts := []string{"grid outage north", "grid outage south", "grid repair crews"}
	v := newTFIDF(TFIDFOptions{})

	a, err := v.FitTransform(context.Background(), texts)
	require.NoError(t, err)
	b, err := v.FitTransform(context.Background(), texts)
	require.NoError(t, err)
	assert.Equal(t, a.Terms, b.Terms)
	assert.True(t, mat.Equal(a.Rows, b.Rows))
}

func TestTFIDFCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTFIDF(TFIDFOptions{}).FitTransform(ctx, []string{"a b"})
	assert.ErrorIs(t, err, context.Canceled)
}

type brokenModel struct{ vecs [][]float64 }

func (m brokenModel) Embed(_ context.Context, texts []string) ([][]float64, error) {
	if m.vecs == nil {
		return nil, errors.New("model not loaded")
	}
	return m.vecs, nil
}
func (brokenModel) Name() string { return "broken" }
func (brokenModel) Close() error { return nil }

func TestSemantic(t *testing.T) {
	texts := []string{"ransomware hits hospital", "football final tonight", "ransomware hits hospital"}
	v := NewSemantic(embed.NewHashing(32), 2, time.Second)

	m, err := v.FitTransform(context.Background(), texts)
	require.NoError(t, err)
	assert.Equal(t, ModeSemantic, m.Mode)
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, 32, m.Dim())
	assert.Nil(t, m.Terms)
	assert.Equal(t, m.Row(0), m.Row(2))
	assert.InDelta(t, 1.0, floats.Norm(m.Row(1), 2), 1e-9)

	empty, err := v.FitTransform(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, empty.Len())
}

func TestSemanticBackendErrors(t *testing.T) {
	tests := []struct {
		name  string
		model embed.Model
		texts []string
	}{
		{name: "no model", model: nil, texts: nil},
		{name: "model fails", model: brokenModel{}, texts: []string{"a", "b"}},
		{name: "ragged vectors", model: brokenModel{vecs: [][]float64{{1, 0}, {1}}}, texts: []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSemantic(tt.model, 0, 0).FitTransform(context.Background(), tt.texts)
			require.Error(t, err)
			assert.ErrorIs(t, err, internalerr.ErrBackendUnavailable)

			var be *internalerr.BackendError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, "semantic", be.Mode)
			assert.Equal(t, len(tt.texts), be.Items)
		})
	}
}

func sortedStrings(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] > s[i] {
			return false
		}
	}
	return true
}

func containsWord(text, word string) bool {
	for _, w := range ingest.Words(text) {
		if w == word {
			return true
		}
	}
	return false
}
