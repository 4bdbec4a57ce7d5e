package store

import (
	"context"
	"time"

	"github.com/cognicore/tidings/pkg/tidings/cluster"
	"github.com/cognicore/tidings/pkg/tidings/ingest"
)

// Store is the persistence interface for items, clusters and window marks.
type Store interface {
	Close() error

	// Items
	SaveItems(ctx context.Context, items []*ingest.Item) error
	SaveLabels(ctx context.Context, items []*ingest.Item) error
	GetItem(ctx context.Context, id string) (*ingest.Item, error)
	ItemsBetween(ctx context.Context, start, end time.Time) ([]*ingest.Item, error)

	// Clusters
	ReplaceClusters(ctx context.Context, scope Scope, runID string, clusters []cluster.Cluster) error
	ClustersByTopic(ctx context.Context, topic string, limit int) ([]Record, error)

	// Window marks
	Mark(ctx context.Context, name string) (time.Time, bool, error)
	SetMark(ctx context.Context, name string, at time.Time) error
}

// Scope identifies the clusters of one topic computed over one window.
// ReplaceClusters swaps all rows of the topic whose window overlaps the scope,
// so successive rolling windows do not pile up.
type Scope struct {
	Topic string
	Start time.Time
	End   time.Time
}

// Overlaps reports whether o covers the same topic over an intersecting
// window. Windows that only share a boundary do not overlap.
func (s Scope) Overlaps(o Scope) bool {
	if s.Topic != o.Topic {
		return false
	}
	if s.Start.Equal(o.Start) && s.End.Equal(o.End) {
		return true
	}
	return s.Start.Before(o.End) && o.Start.Before(s.End)
}

// Record is a stored cluster with the run and window that produced it.
type Record struct {
	RunID   string
	Scope   Scope
	Cluster cluster.Cluster
}
