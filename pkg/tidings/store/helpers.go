package store

import (
	"fmt"

	"github.com/cognicore/tidings/pkg/tidings/cluster"
	"github.com/cognicore/tidings/pkg/tidings/ingest"
	"github.com/cognicore/tidings/pkg/tidings/internalerr"
)

// ValidateItems checks items before they are written.
func ValidateItems(items []*ingest.Item) error {
	for i, it := range items {
		if it == nil {
			return fmt.Errorf("item %d is nil: %w", i, internalerr.ErrInvalidInput)
		}
		if err := it.Validate(); err != nil {
			return fmt.Errorf("item %d (%s): %v: %w", i, it.ID, err, internalerr.ErrInvalidInput)
		}
	}
	return nil
}

// ValidateClusters checks that every cluster belongs to the scope's topic.
func (s Scope) ValidateClusters(clusters []cluster.Cluster) error {
	if s.Topic == "" {
		return fmt.Errorf("cluster scope has no topic: %w", internalerr.ErrInvalidInput)
	}
	if s.End.Before(s.Start) {
		return fmt.Errorf("cluster scope %s ends before it starts: %w", s.Topic, internalerr.ErrInvalidInput)
	}
	for _, c := range clusters {
		if c.Topic != s.Topic {
			return fmt.Errorf("cluster %s has topic %q, scope is %q: %w", c.ID, c.Topic, s.Topic, internalerr.ErrInvalidInput)
		}
	}
	return nil
}

// CopyItem returns a deep copy of it.
func CopyItem(it *ingest.Item) *ingest.Item {
	out := *it
	out.Topics = copyStrings(it.Topics)
	out.Keywords = copyStrings(it.Keywords)
	if it.TopicScores != nil {
		out.TopicScores = make(map[string]float64, len(it.TopicScores))
		for k, v := range it.TopicScores {
			out.TopicScores[k] = v
		}
	}
	return &out
}

// CopyCluster returns a deep copy of c.
func CopyCluster(c cluster.Cluster) cluster.Cluster {
	c.TopTerms = copyStrings(c.TopTerms)
	c.RepresentativeIDs = copyStrings(c.RepresentativeIDs)
	c.MemberIDs = copyStrings(c.MemberIDs)
	return c
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
