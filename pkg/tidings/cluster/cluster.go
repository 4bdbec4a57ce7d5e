// Package cluster groups same-topic items of one window into clusters and
// describes each cluster with top terms, representatives and a coherence
// figure.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/cognicore/tidings/pkg/tidings/ingest"
	"github.com/cognicore/tidings/pkg/tidings/internalerr"
	"github.com/cognicore/tidings/pkg/tidings/vectorize"
)

// Member is the part of an item the clusterer needs.
type Member struct {
	ID          string
	CollectedAt time.Time
	Text        string
}

// MembersFromItems converts items, capping each text at textCap runes.
func MembersFromItems(items []*ingest.Item, textCap int) []Member {
	out := make([]Member, len(items))
	for i, it := range items {
		out[i] = Member{ID: it.ID, CollectedAt: it.CollectedAt, Text: it.Text(textCap)}
	}
	return out
}

// Cluster is one group of items of a single topic.
type Cluster struct {
	ID                string
	Topic             string
	Mode              vectorize.Mode
	Start             time.Time
	End               time.Time
	Size              int
	Coherence         float64
	Score             float64
	TopTerms          []string
	RepresentativeIDs []string
	MemberIDs         []string // ordered by collection time, then ID
	LowCoherence      bool
	Undersized        bool
}

// Options control clustering. Zero values select the defaults.
type Options struct {
	MaxClusters        int     // default 8
	Seed               int64   // k-means seed
	NInit              int     // k-means restarts, default 4
	MaxIter            int     // default 100
	DistanceThreshold  float64 // agglomerative merge distance, default 0.35
	TopTerms           int     // default 8
	MaxRepresentatives int     // default 5
	MinCoherence       float64
	MinClusterSize     int // default 3
	Now                func() time.Time
	Logger             zerolog.Logger
}

func (o *Options) setDefaults() {
	if o.MaxClusters <= 0 {
		o.MaxClusters = 8
	}
	if o.NInit <= 0 {
		o.NInit = 4
	}
	if o.MaxIter <= 0 {
		o.MaxIter = 100
	}
	if o.DistanceThreshold <= 0 {
		o.DistanceThreshold = 0.35
	}
	if o.TopTerms <= 0 {
		o.TopTerms = 8
	}
	if o.MaxRepresentatives <= 0 {
		o.MaxRepresentatives = 5
	}
	if o.MinClusterSize <= 0 {
		o.MinClusterSize = 3
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Clusterer clusters the items of one topic at a time.
type Clusterer struct {
	vectorizer vectorize.Vectorizer
	pipeline   *ingest.Pipeline
	opts       Options
}

// New creates a clusterer. The pipeline supplies tokens for semantic top
// terms; a default pipeline is used when nil.
func New(v vectorize.Vectorizer, p *ingest.Pipeline, opts Options) *Clusterer {
	opts.setDefaults()
	if p == nil {
		p = ingest.NewPipeline(nil, nil, false, 0)
	}
	return &Clusterer{vectorizer: v, pipeline: p, opts: opts}
}

// Mode returns the vectorizer's mode.
func (c *Clusterer) Mode() vectorize.Mode {
	if c.vectorizer == nil {
		return ""
	}
	return c.vectorizer.Mode()
}

// Run vectorizes the member texts and clusters them. Backend failures come
// back as *internalerr.BackendError carrying the topic.
func (c *Clusterer) Run(ctx context.Context, topic string, members []Member) ([]Cluster, error) {
	if c.vectorizer == nil {
		return nil, fmt.Errorf("cluster %s: no vectorizer: %w", topic, internalerr.ErrInvalidConfig)
	}
	if len(members) == 0 {
		return nil, nil
	}
	texts := make([]string, len(members))
	for i, m := range members {
		texts[i] = m.Text
	}
	matrix, err := c.vectorizer.FitTransform(ctx, texts)
	if err != nil {
		var be *internalerr.BackendError
		if errors.As(err, &be) && be.Topic == "" {
			be.Topic = topic
		}
		return nil, fmt.Errorf("vectorize %s: %w", topic, err)
	}
	return c.Cluster(ctx, topic, members, matrix)
}

// Cluster groups members using the precomputed matrix, whose row i belongs
// to members[i]. The matrix mode picks the algorithm.
func (c *Clusterer) Cluster(ctx context.Context, topic string, members []Member, m *vectorize.Matrix) ([]Cluster, error) {
	n := len(members)
	if n == 0 {
		return nil, nil
	}
	if m.Len() != n {
		return nil, fmt.Errorf("cluster %s: %d rows for %d members: %w", topic, m.Len(), n, internalerr.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var groups [][]int
	switch {
	case n == 1 || m.Rows == nil:
		groups = [][]int{allIndexes(n)}
	case m.Mode == vectorize.ModeSemantic:
		groups = averageLinkage(m.Rows, c.opts.DistanceThreshold, c.opts.MaxClusters)
	default:
		k := ChooseK(n, c.opts.MaxClusters)
		labels := sphericalKMeans(m.Rows, k, c.opts.Seed, c.opts.NInit, c.opts.MaxIter)
		groups = groupLabels(labels)
	}

	now := c.opts.Now()
	out := make([]Cluster, 0, len(groups))
	for _, g := range groups {
		out = append(out, c.describe(topic, members, m, g, now))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Size != out[j].Size {
			return out[i].Size > out[j].Size
		}
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})

	c.opts.Logger.Debug().
		Str("topic", topic).
		Str("mode", string(m.Mode)).
		Int("items", n).
		Int("clusters", len(out)).
		Msg("clustered topic")
	return out, nil
}

func (c *Clusterer) describe(topic string, members []Member, m *vectorize.Matrix, idx []int, now time.Time) Cluster {
	ordered := make([]int, len(idx))
	copy(ordered, idx)
	sort.SliceStable(ordered, func(a, b int) bool {
		return memberBefore(members[ordered[a]], members[ordered[b]])
	})

	ids := make([]string, len(ordered))
	for i, j := range ordered {
		ids[i] = members[j].ID
	}
	start := members[ordered[0]].CollectedAt
	end := members[ordered[len(ordered)-1]].CollectedAt

	cl := Cluster{
		ID:        StableID(ids),
		Topic:     topic,
		Mode:      m.Mode,
		Start:     start,
		End:       end,
		Size:      len(ids),
		MemberIDs: ids,
		Score:     Score(len(ids), end, now),
	}

	rows := rowsOf(m.Rows, ordered)
	cl.Coherence = coherence(rows, len(ordered))
	cl.LowCoherence = cl.Coherence < c.opts.MinCoherence
	cl.Undersized = cl.Size < c.opts.MinClusterSize

	if m.Mode == vectorize.ModeSemantic {
		cl.TopTerms = c.tokenTerms(members, ordered)
		cl.RepresentativeIDs = pickRepresentatives(members, ordered, pairwiseSums(rows), c.opts.MaxRepresentatives)
	} else {
		cl.TopTerms = weightedTerms(m.Terms, rows, c.opts.TopTerms)
		cl.RepresentativeIDs = pickRepresentatives(members, ordered, centroidSims(rows), c.opts.MaxRepresentatives)
	}
	return cl
}

func (c *Clusterer) tokenTerms(members []Member, idx []int) []string {
	counts := make(map[string]float64)
	for _, j := range idx {
		for _, tok := range c.pipeline.Tokens(members[j].Text, "") {
			counts[tok]++
		}
	}
	return topByWeight(counts, c.opts.TopTerms)
}

func memberBefore(a, b Member) bool {
	if !a.CollectedAt.Equal(b.CollectedAt) {
		return a.CollectedAt.Before(b.CollectedAt)
	}
	return a.ID < b.ID
}

func allIndexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// groupLabels converts dense labels 0..k-1 into index groups.
func groupLabels(labels []int) [][]int {
	var groups [][]int
	for i, l := range labels {
		for len(groups) <= l {
			groups = append(groups, nil)
		}
		groups[l] = append(groups[l], i)
	}
	out := groups[:0]
	for _, g := range groups {
		if len(g) > 0 {
			out = append(out, g)
		}
	}
	return out
}

// rowsOf returns views of the selected rows, or nil for a featureless matrix.
func rowsOf(data *mat.Dense, idx []int) [][]float64 {
	if data == nil {
		return nil
	}
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = data.RawRowView(j)
	}
	return out
}
