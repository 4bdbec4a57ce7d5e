package cluster

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/tidings/pkg/tidings/embed"
	"github.com/cognicore/tidings/pkg/tidings/ingest"
	"github.com/cognicore/tidings/pkg/tidings/internalerr"
	"github.com/cognicore/tidings/pkg/tidings/stoplist"
	"github.com/cognicore/tidings/pkg/tidings/vectorize"
)

var base = time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)

func pipeline() *ingest.Pipeline {
	return ingest.NewPipeline(nil, stoplist.NewManager(nil), false, 0)
}

func lexical(opts Options) *Clusterer {
	p := pipeline()
	return New(vectorize.NewTFIDF(p, vectorize.TFIDFOptions{}), p, opts)
}

func semantic(model embed.Model, opts Options) *Clusterer {
	return New(vectorize.NewSemantic(model, 0, time.Second), pipeline(), opts)
}

func members(texts ...string) []Member {
	out := make([]Member, len(texts))
	for i, text := range texts {
		out[i] = Member{
			ID:          fmt.Sprintf("item-%02d", i),
			CollectedAt: base.Add(time.Duration(i) * 2 * time.Hour),
			Text:        text,
		}
	}
	return out
}

func fixedNow() time.Time { return base.Add(12 * time.Hour) }

func TestChooseK(t *testing.T) {
	tests := []struct {
		n, max, want int
	}{
		{n: 0, max: 8, want: 0},
		{n: 1, max: 8, want: 1},
		{n: 2, max: 8, want: 2},
		{n: 5, max: 3, want: 2},
		{n: 8, max: 8, want: 2},
		{n: 9, max: 8, want: 2},
		{n: 50, max: 8, want: 5},
		{n: 200, max: 8, want: 8},
		{n: 2000, max: 30, want: 24},
		{n: 5, max: 1, want: 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d,max=%d", tt.n, tt.max), func(t *testing.T) {
			assert.Equal(t, tt.want, ChooseK(tt.n, tt.max))
		})
	}
}

func TestRunEmpty(t *testing.T) {
	tests := []struct {
		name      string
		clusterer *Clusterer
	}{
		{"lexical", lexical(Options{})},
		{"semantic", semantic(embed.NewHashing(32), Options{})},
		{"semantic without backend", semantic(nil, Options{})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tt.clusterer.Run(context.Background(), "cyber", nil)
			require.NoError(t, err)
			assert.Empty(t, out)

			out, err = tt.clusterer.Run(context.Background(), "cyber", []Member{})
			require.NoError(t, err)
			assert.Empty(t, out)
		})
	}
}

func TestRunSingleItem(t *testing.T) {
	for _, c := range []*Clusterer{lexical(Options{Now: fixedNow}), semantic(embed.NewHashing(32), Options{Now: fixedNow})} {
		t.Run(string(c.Mode()), func(t *testing.T) {
			m := members("Ransomware gang leaks hospital records")
			out, err := c.Run(context.Background(), "cyber", m)
			require.NoError(t, err)
			require.Len(t, out, 1)

			cl := out[0]
			assert.Equal(t, 1, cl.Size)
			assert.Equal(t, []string{"item-00"}, cl.MemberIDs)
			assert.Equal(t, []string{"item-00"}, cl.RepresentativeIDs)
			assert.Equal(t, 1.0, cl.Coherence)
			assert.True(t, cl.Start.Equal(cl.End))
			assert.True(t, cl.Undersized)
			assert.False(t, cl.LowCoherence)
			assert.Equal(t, "cyber", cl.Topic)
			assert.Equal(t, c.Mode(), cl.Mode)
		})
	}
}

func TestRunFiveCyberItems(t *testing.T) {
	m := members(
		"Ransomware attack shuts hospital network in Ohio",
		"Hospital ransomware attack delays surgeries",
		"Data breach exposes millions of customer passwords",
		"Customer passwords leaked in retail data breach",
		"New ransomware strain targets hospital backups",
	)
	c := lexical(Options{MaxClusters: 3, Now: fixedNow})

	out, err := c.Run(context.Background(), "cyber", m)
	require.NoError(t, err)
	require.NotEmpty(t, out)
	assert.LessOrEqual(t, len(out), 3)

	byID := make(map[string]Member)
	for _, mm := range m {
		byID[mm.ID] = mm
	}
	total := 0
	seen := make(map[string]bool)
	for _, cl := range out {
		total += cl.Size
		assert.Equal(t, cl.Size, len(cl.MemberIDs))
		assert.Equal(t, StableID(cl.MemberIDs), cl.ID)
		assert.LessOrEqual(t, len(cl.RepresentativeIDs), 5)
		assert.Subset(t, cl.MemberIDs, cl.RepresentativeIDs)
		assert.LessOrEqual(t, len(cl.TopTerms), 8)
		for _, id := range cl.MemberIDs {
			assert.False(t, seen[id], "%s in two clusters", id)
			seen[id] = true
			at := byID[id].CollectedAt
			assert.False(t, at.Before(cl.Start), "%s before start", id)
			assert.False(t, at.After(cl.End), "%s after end", id)
		}
	}
	assert.Equal(t, 5, total)

	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i-1].Size, out[i].Size)
	}
}

func TestRunSeparatesDistinctGroups(t *testing.T) {
	a := "ransomware attack hospital network"
	b := "football final stadium crowd"
	m := members(a, a, a, b, b, b)

	tests := []struct {
		name string
		c    *Clusterer
	}{
		{name: "lexical", c: lexical(Options{Now: fixedNow})},
		{name: "semantic", c: semantic(embed.NewHashing(256), Options{Now: fixedNow})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tt.c.Run(context.Background(), "mixed", m)
			require.NoError(t, err)
			require.Len(t, out, 2)

			assert.Equal(t, []string{"item-00", "item-01", "item-02"}, out[0].MemberIDs)
			assert.Equal(t, []string{"item-03", "item-04", "item-05"}, out[1].MemberIDs)
			assert.Contains(t, out[0].TopTerms, "ransomware")
			assert.Contains(t, out[1].TopTerms, "football")
			assert.InDelta(t, 1.0, out[0].Coherence, 1e-9)
			assert.False(t, out[0].Undersized)
			// Equal scores resolve to the earliest member.
			assert.Equal(t, "item-00", out[0].RepresentativeIDs[0])
		})
	}
}

func TestRunDeterministic(t *testing.T) {
	m := members(
		"grid outage hits northern suburbs",
		"power grid outage blamed on storm",
		"storm damage leaves thousands without power",
		"utility crews restore grid after storm",
		"refinery fire sends smoke over city",
		"refinery blaze contained by firefighters",
		"power restored to most homes",
		"fire at refinery forces evacuation",
		"storm warning issued for coast",
	)
	c := lexical(Options{Seed: 7, Now: fixedNow})

	first, err := c.Run(context.Background(), "energy", m)
	require.NoError(t, err)
	second, err := c.Run(context.Background(), "energy", m)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSemanticWithoutBackend(t *testing.T) {
	c := semantic(nil, Options{})
	_, err := c.Run(context.Background(), "cyber", members("a", "b", "c"))
	require.Error(t, err)
	assert.ErrorIs(t, err, internalerr.ErrBackendUnavailable)

	var be *internalerr.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "cyber", be.Topic)
	assert.Equal(t, 3, be.Items)
}

func TestSemanticMergesToCap(t *testing.T) {
	c := semantic(embed.NewHashing(256), Options{MaxClusters: 1, MinCoherence: 0.2, Now: fixedNow})
	out, err := c.Run(context.Background(), "mixed", members("ransomware hospital attack", "football stadium final"))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].Size)
	assert.True(t, out[0].LowCoherence)
}

func TestClusterRejectsMismatchedMatrix(t *testing.T) {
	p := pipeline()
	m, err := vectorize.NewTFIDF(p, vectorize.TFIDFOptions{}).FitTransform(context.Background(), []string{"one text"})
	require.NoError(t, err)

	_, err = New(nil, p, Options{}).Cluster(context.Background(), "cyber", members("a", "b"), m)
	assert.ErrorIs(t, err, internalerr.ErrInvalidInput)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := lexical(Options{}).Run(ctx, "cyber", members("a b", "c d"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStableID(t *testing.T) {
	a := StableID([]string{"b", "a", "c"})
	assert.Equal(t, a, StableID([]string{"c", "b", "a"}))
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, StableID([]string{"a", "b"}))
}

func TestScore(t *testing.T) {
	now := base
	tests := []struct {
		name string
		size int
		end  time.Time
		want float64
	}{
		{name: "fresh", size: 5, end: now.Add(-30 * time.Minute), want: 7},
		{name: "four hours", size: 5, end: now.Add(-4 * time.Hour), want: 5.5},
		{name: "future end", size: 1, end: now.Add(time.Hour), want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(tt.size, tt.end, now), 1e-9)
		})
	}
}

func TestMembersFromItems(t *testing.T) {
	items := []*ingest.Item{{ID: "x", CollectedAt: base, Title: "<b>Alert</b>", Body: "grid down"}}
	m := MembersFromItems(items, 0)
	require.Len(t, m, 1)
	assert.Equal(t, "x", m[0].ID)
	assert.Equal(t, "Alert\ngrid down", m[0].Text)
}
