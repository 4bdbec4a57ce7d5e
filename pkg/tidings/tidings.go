package tidings

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/cognicore/tidings/internal/handoff"
	"github.com/cognicore/tidings/pkg/tidings/classify"
	"github.com/cognicore/tidings/pkg/tidings/cluster"
	"github.com/cognicore/tidings/pkg/tidings/ingest"
	"github.com/cognicore/tidings/pkg/tidings/internalerr"
	"github.com/cognicore/tidings/pkg/tidings/store"
	"github.com/cognicore/tidings/pkg/tidings/window"
)

// Engine runs the classify and cluster passes over stored items.
type Engine struct {
	store      store.Store
	classifier *classify.Classifier
	clusterer  *cluster.Clusterer
	window     *window.Manager
	sink       handoff.Sink
	textCap    int
	now        func() time.Time
	logger     zerolog.Logger

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Options configures an Engine. Sink is optional.
type Options struct {
	Store      store.Store
	Classifier *classify.Classifier
	Clusterer  *cluster.Clusterer
	Window     *window.Manager
	Sink       handoff.Sink
	TextCap    int
	Now        func() time.Time
	Logger     zerolog.Logger
}

// New creates an engine with the given dependencies.
func New(opts Options) (*Engine, error) {
	switch {
	case opts.Store == nil:
		return nil, fmt.Errorf("engine: store required: %w", internalerr.ErrInvalidConfig)
	case opts.Classifier == nil:
		return nil, fmt.Errorf("engine: classifier required: %w", internalerr.ErrInvalidConfig)
	case opts.Clusterer == nil:
		return nil, fmt.Errorf("engine: clusterer required: %w", internalerr.ErrInvalidConfig)
	case opts.Window == nil:
		return nil, fmt.Errorf("engine: window manager required: %w", internalerr.ErrInvalidConfig)
	}
	if opts.Sink == nil {
		opts.Sink = handoff.Discard{}
	}
	if opts.TextCap <= 0 {
		opts.TextCap = ingest.DefaultTextCap
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		store:      opts.Store,
		classifier: opts.Classifier,
		clusterer:  opts.Clusterer,
		window:     opts.Window,
		sink:       opts.Sink,
		textCap:    opts.TextCap,
		now:        opts.Now,
		logger:     opts.Logger,
		entropy:    ulid.Monotonic(rand.Reader, 0),
	}, nil
}

// Close shuts down the sink and the store.
func (e *Engine) Close() error {
	return errors.Join(e.sink.Close(), e.store.Close())
}

// Ingest validates and stores items. Items already stored are replaced.
func (e *Engine) Ingest(ctx context.Context, items []*ingest.Item) error {
	if len(items) == 0 {
		return nil
	}
	if err := e.store.SaveItems(ctx, items); err != nil {
		return fmt.Errorf("save items: %w", err)
	}
	return nil
}

// Classify labels items in place without storing them.
func (e *Engine) Classify(ctx context.Context, items []*ingest.Item) (degraded bool, err error) {
	return e.classifier.ClassifyItems(ctx, items)
}

// TopicResult holds the clusters computed for one topic.
type TopicResult struct {
	Topic    string
	Items    int
	Clusters []cluster.Cluster
}

// Report summarizes one run.
type Report struct {
	RunID    string
	Scope    window.Scope
	Items    int
	Degraded bool // semantic scoring fell back to keywords for some item
	Topics   []TopicResult
}

// Clusters returns the number of clusters across topics.
func (r *Report) Clusters() int {
	n := 0
	for _, t := range r.Topics {
		n += len(t.Clusters)
	}
	return n
}

// Run classifies the items of the current window, clusters each topic,
// persists the clusters and hands them off. Topics are processed in sorted
// order; on error the report holds every topic completed so far. Reset
// windows advance only after a fully successful run.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	now := e.now().UTC()
	scope, err := e.window.Scope(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("window scope: %w", err)
	}
	report := &Report{RunID: e.newRunID(now), Scope: scope}
	log := e.logger.With().Str("run_id", report.RunID).Logger()

	items, err := e.store.ItemsBetween(ctx, scope.Start, scope.End)
	if err != nil {
		return report, fmt.Errorf("load items: %w", err)
	}
	report.Items = len(items)

	report.Degraded, err = e.classifier.ClassifyItems(ctx, items)
	if err != nil {
		return report, fmt.Errorf("classify: %w", err)
	}
	if len(items) > 0 {
		if err := e.store.SaveLabels(ctx, items); err != nil {
			return report, fmt.Errorf("save labels: %w", err)
		}
	}
	if report.Degraded {
		log.Warn().Int("items", len(items)).Msg("semantic scoring unavailable, using keyword scores")
	}

	topics, groups := window.GroupByTopic(items)
	for _, topic := range topics {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := e.runTopic(ctx, report.RunID, scope, topic, groups[topic])
		if err != nil {
			return report, err
		}
		report.Topics = append(report.Topics, res)
	}

	if err := e.window.Reset(ctx, now); err != nil {
		return report, fmt.Errorf("advance window: %w", err)
	}
	log.Info().
		Int("items", report.Items).
		Int("topics", len(report.Topics)).
		Int("clusters", report.Clusters()).
		Bool("degraded", report.Degraded).
		Msg("run complete")
	return report, nil
}

func (e *Engine) runTopic(ctx context.Context, runID string, scope window.Scope, topic string, items []*ingest.Item) (TopicResult, error) {
	res := TopicResult{Topic: topic, Items: len(items)}

	clusters, err := e.clusterer.Run(ctx, topic, cluster.MembersFromItems(items, e.textCap))
	if err != nil {
		return res, fmt.Errorf("cluster %s: %w", topic, err)
	}
	res.Clusters = clusters

	st := store.Scope{Topic: topic, Start: scope.Start, End: scope.End}
	if err := e.store.ReplaceClusters(ctx, st, runID, clusters); err != nil {
		return res, fmt.Errorf("save clusters %s: %w", topic, err)
	}

	byID := make(map[string]*ingest.Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	batch := &handoff.Batch{RunID: runID, Scope: st, Clusters: clusters, Items: byID}
	if err := e.sink.Send(ctx, batch); err != nil {
		return res, fmt.Errorf("hand off %s: %w", topic, err)
	}

	e.logger.Debug().
		Str("run_id", runID).
		Str("topic", topic).
		Str("mode", string(e.clusterer.Mode())).
		Int("items", len(items)).
		Int("clusters", len(clusters)).
		Msg("topic clustered")
	return res, nil
}

// ClusterItems classifies items and clusters each topic without touching
// the store or the sink.
func (e *Engine) ClusterItems(ctx context.Context, items []*ingest.Item) ([]TopicResult, bool, error) {
	degraded, err := e.classifier.ClassifyItems(ctx, items)
	if err != nil {
		return nil, degraded, fmt.Errorf("classify: %w", err)
	}
	var out []TopicResult
	topics, groups := window.GroupByTopic(items)
	for _, topic := range topics {
		clusters, err := e.clusterer.Run(ctx, topic, cluster.MembersFromItems(groups[topic], e.textCap))
		if err != nil {
			return out, degraded, fmt.Errorf("cluster %s: %w", topic, err)
		}
		out = append(out, TopicResult{Topic: topic, Items: len(groups[topic]), Clusters: clusters})
	}
	return out, degraded, nil
}

// Clusters returns the stored clusters of a topic, newest window first.
func (e *Engine) Clusters(ctx context.Context, topic string, limit int) ([]store.Record, error) {
	return e.store.ClustersByTopic(ctx, topic, limit)
}

func (e *Engine) newRunID(now time.Time) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), e.entropy).String()
}
