package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cognicore/tidings/pkg/tidings/cluster"
	"github.com/cognicore/tidings/pkg/tidings/ingest"
	"github.com/cognicore/tidings/pkg/tidings/internalerr"
	"github.com/cognicore/tidings/pkg/tidings/store"
)

// Store is an in-memory implementation of store.Store for tests and
// one-shot CLI runs.
type Store struct {
	mu       sync.RWMutex
	items    map[string]*ingest.Item
	clusters map[string][]store.Record // by topic, newest scope first
	marks    map[string]time.Time
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		items:    make(map[string]*ingest.Item),
		clusters: make(map[string][]store.Record),
		marks:    make(map[string]time.Time),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// SaveItems inserts or replaces items by ID.
func (s *Store) SaveItems(ctx context.Context, items []*ingest.Item) error {
	if err := store.ValidateItems(items); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range items {
		s.items[it.ID] = store.CopyItem(it)
	}
	return nil
}

// SaveLabels overwrites the classification fields of stored items.
func (s *Store) SaveLabels(ctx context.Context, items []*ingest.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range items {
		if _, ok := s.items[it.ID]; !ok {
			return fmt.Errorf("item %s: %w", it.ID, internalerr.ErrNotFound)
		}
	}
	for _, it := range items {
		stored := s.items[it.ID]
		labeled := store.CopyItem(it)
		stored.Language = labeled.Language
		stored.LanguageConfidence = labeled.LanguageConfidence
		stored.Topics = labeled.Topics
		stored.Keywords = labeled.Keywords
		stored.TopicScores = labeled.TopicScores
	}
	return nil
}

// GetItem returns an item by ID.
func (s *Store) GetItem(ctx context.Context, id string) (*ingest.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("item %s: %w", id, internalerr.ErrNotFound)
	}
	return store.CopyItem(it), nil
}

// ItemsBetween returns items collected within [start, end], oldest first.
func (s *Store) ItemsBetween(ctx context.Context, start, end time.Time) ([]*ingest.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ingest.Item
	for _, it := range s.items {
		if it.CollectedAt.Before(start) || it.CollectedAt.After(end) {
			continue
		}
		out = append(out, store.CopyItem(it))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CollectedAt.Equal(out[j].CollectedAt) {
			return out[i].CollectedAt.Before(out[j].CollectedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ReplaceClusters swaps the clusters of every stored window overlapping scope.
func (s *Store) ReplaceClusters(ctx context.Context, scope store.Scope, runID string, clusters []cluster.Cluster) error {
	if err := scope.ValidateClusters(clusters); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []store.Record
	for _, r := range s.clusters[scope.Topic] {
		if r.Scope.Overlaps(scope) {
			continue
		}
		kept = append(kept, r)
	}
	for _, c := range clusters {
		kept = append(kept, store.Record{RunID: runID, Scope: scope, Cluster: store.CopyCluster(c)})
	}
	// Newest window first; insertion order within a window.
	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i].Scope, kept[j].Scope
		if !a.End.Equal(b.End) {
			return a.End.After(b.End)
		}
		return a.Start.After(b.Start)
	})
	s.clusters[scope.Topic] = kept
	return nil
}

// ClustersByTopic returns stored clusters of topic, newest window first.
func (s *Store) ClustersByTopic(ctx context.Context, topic string, limit int) ([]store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.clusters[topic]
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	out := make([]store.Record, len(records))
	for i, r := range records {
		out[i] = store.Record{RunID: r.RunID, Scope: r.Scope, Cluster: store.CopyCluster(r.Cluster)}
	}
	return out, nil
}

// Mark returns a named window mark.
func (s *Store) Mark(ctx context.Context, name string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	at, ok := s.marks[name]
	return at, ok, nil
}

// SetMark stores a named window mark.
func (s *Store) SetMark(ctx context.Context, name string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.marks[name] = at
	return nil
}

var _ store.Store = (*Store)(nil)
