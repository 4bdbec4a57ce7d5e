package handoff

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cognicore/tidings/pkg/tidings/cluster"
	"github.com/cognicore/tidings/pkg/tidings/ingest"
	"github.com/cognicore/tidings/pkg/tidings/store"
)

// Sink receives the clusters of one topic after they are persisted.
type Sink interface {
	Send(ctx context.Context, b *Batch) error
	Close() error
}

// Batch is the output of clustering one topic in one run.
type Batch struct {
	RunID    string
	Scope    store.Scope
	Clusters []cluster.Cluster
	// Items resolves representative IDs to their content. Missing entries
	// are sent with the ID only.
	Items map[string]*ingest.Item
}

// Message is the wire form of a single cluster.
type Message struct {
	RunID           string    `json:"run_id"`
	Topic           string    `json:"topic"`
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
	ClusterID       string    `json:"cluster_id"`
	Mode            string    `json:"mode"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	Size            int       `json:"size"`
	Coherence       float64   `json:"coherence"`
	Score           float64   `json:"score"`
	TopTerms        []string  `json:"top_terms"`
	MemberIDs       []string  `json:"member_ids"`
	Representatives []Item    `json:"representatives"`
	LowCoherence    bool      `json:"low_coherence,omitempty"`
	Undersized      bool      `json:"undersized,omitempty"`
}

// Item is a representative item as handed to summarization.
type Item struct {
	ID          string    `json:"id"`
	URL         string    `json:"url,omitempty"`
	Source      string    `json:"source,omitempty"`
	CollectedAt time.Time `json:"collected_at"`
	Title       string    `json:"title,omitempty"`
	Body        string    `json:"body,omitempty"`
	Language    string    `json:"language,omitempty"`
}

// Messages flattens the batch into one message per cluster, in cluster order.
func (b *Batch) Messages() []Message {
	out := make([]Message, 0, len(b.Clusters))
	for _, c := range b.Clusters {
		msg := Message{
			RunID:        b.RunID,
			Topic:        b.Scope.Topic,
			WindowStart:  b.Scope.Start,
			WindowEnd:    b.Scope.End,
			ClusterID:    c.ID,
			Mode:         string(c.Mode),
			Start:        c.Start,
			End:          c.End,
			Size:         c.Size,
			Coherence:    c.Coherence,
			Score:        c.Score,
			TopTerms:     c.TopTerms,
			MemberIDs:    c.MemberIDs,
			LowCoherence: c.LowCoherence,
			Undersized:   c.Undersized,
		}
		for _, id := range c.RepresentativeIDs {
			rep := Item{ID: id}
			if it, ok := b.Items[id]; ok && it != nil {
				rep = Item{
					ID:          it.ID,
					URL:         it.URL,
					Source:      it.Source,
					CollectedAt: it.CollectedAt,
					Title:       it.Title,
					Body:        it.Body,
					Language:    it.Language,
				}
			}
			msg.Representatives = append(msg.Representatives, rep)
		}
		out = append(out, msg)
	}
	return out
}

// Options selects and configures a sink.
type Options struct {
	Sink    string // jsonl | kafka | none
	Path    string
	Brokers []string
	Topic   string
	Logger  zerolog.Logger
}

// Open returns the configured sink. The none sink discards every batch.
func Open(opts Options) (Sink, error) {
	switch opts.Sink {
	case "none", "":
		return Discard{}, nil
	case "jsonl":
		s, err := NewJSONL(opts.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "kafka":
		s, err := NewKafka(opts.Brokers, opts.Topic, opts.Logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown sink %q", opts.Sink)
}

// Discard drops every batch.
type Discard struct{}

func (Discard) Send(context.Context, *Batch) error { return nil }
func (Discard) Close() error                       { return nil }
