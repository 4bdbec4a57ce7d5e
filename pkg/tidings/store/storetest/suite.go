// Package storetest holds the behaviour every store.Store backend must show.
package storetest

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/cognicore/tidings/pkg/tidings/cluster"
	"github.com/cognicore/tidings/pkg/tidings/ingest"
	"github.com/cognicore/tidings/pkg/tidings/internalerr"
	"github.com/cognicore/tidings/pkg/tidings/store"
	"github.com/cognicore/tidings/pkg/tidings/vectorize"
)

// Suite runs against a fresh store per test. Backend packages embed it and
// set Open.
type Suite struct {
	suite.Suite

	Open func() store.Store

	ctx   context.Context
	store store.Store
}

var base = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func (s *Suite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.Open()
}

func (s *Suite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func item(id string, hour int) *ingest.Item {
	return &ingest.Item{
		ID:          id,
		URL:         "https://news.example/" + id,
		Source:      "wire",
		CollectedAt: base.Add(time.Duration(hour) * time.Hour),
		Title:       "Title " + id,
		Body:        "Body of " + id,
	}
}

func (s *Suite) TestSaveAndGetItem() {
	it := item("a", 0)
	it.Language = "en"
	it.LanguageConfidence = 0.9
	it.Topics = []string{"cyber"}
	it.Keywords = []string{"ransomware"}
	it.TopicScores = map[string]float64{"cyber": 0.7, "energy": 0.1}
	s.Require().NoError(s.store.SaveItems(s.ctx, []*ingest.Item{it}))

	got, err := s.store.GetItem(s.ctx, "a")
	s.Require().NoError(err)
	s.Equal(it.URL, got.URL)
	s.Equal(it.Source, got.Source)
	s.True(it.CollectedAt.Equal(got.CollectedAt))
	s.Equal(it.Title, got.Title)
	s.Equal(it.Body, got.Body)
	s.Equal("en", got.Language)
	s.InDelta(0.9, got.LanguageConfidence, 1e-9)
	s.Equal([]string{"cyber"}, got.Topics)
	s.Equal([]string{"ransomware"}, got.Keywords)
	s.Equal(it.TopicScores, got.TopicScores)

	_, err = s.store.GetItem(s.ctx, "missing")
	s.ErrorIs(err, internalerr.ErrNotFound)
}

func (s *Suite) TestSaveItemsUpserts() {
	s.Require().NoError(s.store.SaveItems(s.ctx, []*ingest.Item{item("a", 0)}))
	updated := item("a", 1)
	updated.Title = "Updated"
	s.Require().NoError(s.store.SaveItems(s.ctx, []*ingest.Item{updated}))

	got, err := s.store.GetItem(s.ctx, "a")
	s.Require().NoError(err)
	s.Equal("Updated", got.Title)
	s.True(updated.CollectedAt.Equal(got.CollectedAt))
}

func (s *Suite) TestSaveItemsRejectsInvalid() {
	err := s.store.SaveItems(s.ctx, []*ingest.Item{item("ok", 0), {ID: "no-time"}})
	s.ErrorIs(err, internalerr.ErrInvalidInput)

	_, err = s.store.GetItem(s.ctx, "ok")
	s.ErrorIs(err, internalerr.ErrNotFound, "nothing is written when validation fails")
}

func (s *Suite) TestSaveLabels() {
	s.Require().NoError(s.store.SaveItems(s.ctx, []*ingest.Item{item("a", 0)}))

	labeled := item("a", 0)
	labeled.Title = "ignored"
	labeled.Language = "de"
	labeled.Topics = []string{"cyber", "energy"}
	labeled.Keywords = []string{"hackerangriff"}
	labeled.TopicScores = map[string]float64{"cyber": 0.5, "energy": 0.4}
	s.Require().NoError(s.store.SaveLabels(s.ctx, []*ingest.Item{labeled}))

	got, err := s.store.GetItem(s.ctx, "a")
	s.Require().NoError(err)
	s.Equal("Title a", got.Title)
	s.Equal("de", got.Language)
	s.Equal([]string{"cyber", "energy"}, got.Topics)
	s.Equal([]string{"hackerangriff"}, got.Keywords)
	s.Equal(labeled.TopicScores, got.TopicScores)

	err = s.store.SaveLabels(s.ctx, []*ingest.Item{item("ghost", 0)})
	s.ErrorIs(err, internalerr.ErrNotFound)
}

func (s *Suite) TestItemsBetween() {
	items := []*ingest.Item{item("c", 5), item("a", 1), item("b", 1), item("d", 9)}
	s.Require().NoError(s.store.SaveItems(s.ctx, items))

	got, err := s.store.ItemsBetween(s.ctx, base.Add(time.Hour), base.Add(5*time.Hour))
	s.Require().NoError(err)
	ids := make([]string, len(got))
	for i, it := range got {
		ids[i] = it.ID
	}
	s.Equal([]string{"a", "b", "c"}, ids, "bounds are inclusive, oldest first, ties by ID")

	none, err := s.store.ItemsBetween(s.ctx, base.Add(100*time.Hour), base.Add(200*time.Hour))
	s.Require().NoError(err)
	s.Empty(none)
}

func sampleCluster(topic, id string, size int) cluster.Cluster {
	members := make([]string, size)
	for i := range members {
		members[i] = id + "-" + string(rune('a'+i))
	}
	return cluster.Cluster{
		ID:                id,
		Topic:             topic,
		Mode:              vectorize.ModeLexical,
		Start:             base,
		End:               base.Add(3 * time.Hour),
		Size:              size,
		Coherence:         0.42,
		Score:             float64(size) + 0.5,
		TopTerms:          []string{"ransomware", "hospital"},
		RepresentativeIDs: members[:1],
		MemberIDs:         members,
		LowCoherence:      size == 1,
		Undersized:        size < 3,
	}
}

func (s *Suite) TestReplaceClusters() {
	scope := store.Scope{Topic: "cyber", Start: base, End: base.Add(36 * time.Hour)}
	first := []cluster.Cluster{sampleCluster("cyber", "c1", 3), sampleCluster("cyber", "c2", 1)}
	s.Require().NoError(s.store.ReplaceClusters(s.ctx, scope, "run-1", first))

	got, err := s.store.ClustersByTopic(s.ctx, "cyber", 0)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal("run-1", got[0].RunID)
	s.Equal("cyber", got[0].Scope.Topic)
	s.True(scope.Start.Equal(got[0].Scope.Start))
	s.True(scope.End.Equal(got[0].Scope.End))

	c := got[0].Cluster
	want := first[0]
	s.Equal(want.ID, c.ID)
	s.Equal(want.Topic, c.Topic)
	s.Equal(want.Mode, c.Mode)
	s.True(want.Start.Equal(c.Start))
	s.True(want.End.Equal(c.End))
	s.Equal(want.Size, c.Size)
	s.InDelta(want.Coherence, c.Coherence, 1e-9)
	s.InDelta(want.Score, c.Score, 1e-9)
	s.Equal(want.TopTerms, c.TopTerms)
	s.Equal(want.RepresentativeIDs, c.RepresentativeIDs)
	s.Equal(want.MemberIDs, c.MemberIDs)
	s.False(c.LowCoherence)
	s.False(c.Undersized)
	s.Equal("c2", got[1].Cluster.ID, "insertion order is kept")
	s.True(got[1].Cluster.LowCoherence)
	s.True(got[1].Cluster.Undersized)

	// A second run over the same scope replaces the rows.
	second := []cluster.Cluster{sampleCluster("cyber", "c3", 4)}
	s.Require().NoError(s.store.ReplaceClusters(s.ctx, scope, "run-2", second))
	got, err = s.store.ClustersByTopic(s.ctx, "cyber", 0)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal("c3", got[0].Cluster.ID)
	s.Equal("run-2", got[0].RunID)
}

func (s *Suite) TestReplaceClustersKeepsOtherScopes() {
	older := store.Scope{Topic: "cyber", Start: base, End: base.Add(36 * time.Hour)}
	newer := store.Scope{Topic: "cyber", Start: base.Add(36 * time.Hour), End: base.Add(72 * time.Hour)}
	energy := store.Scope{Topic: "energy", Start: base, End: base.Add(36 * time.Hour)}

	s.Require().NoError(s.store.ReplaceClusters(s.ctx, older, "run-1", []cluster.Cluster{sampleCluster("cyber", "old", 3)}))
	s.Require().NoError(s.store.ReplaceClusters(s.ctx, newer, "run-2", []cluster.Cluster{sampleCluster("cyber", "new", 3)}))
	s.Require().NoError(s.store.ReplaceClusters(s.ctx, energy, "run-2", []cluster.Cluster{sampleCluster("energy", "grid", 3)}))

	got, err := s.store.ClustersByTopic(s.ctx, "cyber", 0)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal("new", got[0].Cluster.ID, "newest window first")
	s.Equal("old", got[1].Cluster.ID)

	limited, err := s.store.ClustersByTopic(s.ctx, "cyber", 1)
	s.Require().NoError(err)
	s.Len(limited, 1)

	// An empty replacement clears only its own scope.
	s.Require().NoError(s.store.ReplaceClusters(s.ctx, newer, "run-3", nil))
	got, err = s.store.ClustersByTopic(s.ctx, "cyber", 0)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal("old", got[0].Cluster.ID)

	en, err := s.store.ClustersByTopic(s.ctx, "energy", 0)
	s.Require().NoError(err)
	s.Len(en, 1)
}

func (s *Suite) TestReplaceClustersReplacesOverlappingWindows() {
	first := store.Scope{Topic: "cyber", Start: base, End: base.Add(36 * time.Hour)}
	rolled := store.Scope{Topic: "cyber", Start: base.Add(2 * time.Hour), End: base.Add(38 * time.Hour)}
	energy := store.Scope{Topic: "energy", Start: base, End: base.Add(36 * time.Hour)}

	s.Require().NoError(s.store.ReplaceClusters(s.ctx, first, "run-1", []cluster.Cluster{sampleCluster("cyber", "a", 3), sampleCluster("cyber", "b", 3)}))
	s.Require().NoError(s.store.ReplaceClusters(s.ctx, energy, "run-1", []cluster.Cluster{sampleCluster("energy", "grid", 3)}))
	s.Require().NoError(s.store.ReplaceClusters(s.ctx, rolled, "run-2", []cluster.Cluster{sampleCluster("cyber", "c", 3)}))

	got, err := s.store.ClustersByTopic(s.ctx, "cyber", 0)
	s.Require().NoError(err)
	s.Require().Len(got, 1, "the rolled window replaces the one it overlaps")
	s.Equal("c", got[0].Cluster.ID)
	s.Equal("run-2", got[0].RunID)
	s.True(rolled.Start.Equal(got[0].Scope.Start))

	en, err := s.store.ClustersByTopic(s.ctx, "energy", 0)
	s.Require().NoError(err)
	s.Len(en, 1, "other topics are untouched")
}

func (s *Suite) TestReplaceClustersRejectsForeignTopic() {
	scope := store.Scope{Topic: "cyber", Start: base, End: base.Add(time.Hour)}
	s.Require().NoError(s.store.ReplaceClusters(s.ctx, scope, "run-1", []cluster.Cluster{sampleCluster("cyber", "keep", 3)}))

	err := s.store.ReplaceClusters(s.ctx, scope, "run-2", []cluster.Cluster{sampleCluster("energy", "grid", 3)})
	s.ErrorIs(err, internalerr.ErrInvalidInput)

	got, err := s.store.ClustersByTopic(s.ctx, "cyber", 0)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal("keep", got[0].Cluster.ID, "a failed replacement leaves prior clusters untouched")
}

func (s *Suite) TestMarks() {
	_, ok, err := s.store.Mark(s.ctx, "reset")
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(s.store.SetMark(s.ctx, "reset", base))
	s.Require().NoError(s.store.SetMark(s.ctx, "reset", base.Add(time.Hour)))

	at, ok, err := s.store.Mark(s.ctx, "reset")
	s.Require().NoError(err)
	s.True(ok)
	s.True(base.Add(time.Hour).Equal(at))
}
