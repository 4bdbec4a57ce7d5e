package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cognicore/tidings/internal/feed"
	"github.com/cognicore/tidings/internal/handoff"
	"github.com/cognicore/tidings/pkg/tidings"
	"github.com/cognicore/tidings/pkg/tidings/cluster"
	"github.com/cognicore/tidings/pkg/tidings/config"
	"github.com/cognicore/tidings/pkg/tidings/ingest"
	"github.com/cognicore/tidings/pkg/tidings/store"
	"github.com/cognicore/tidings/pkg/tidings/store/memstore"
)

// app bundles an engine with the components it was built from.
type app struct {
	comp   *config.Components
	store  store.Store
	engine *tidings.Engine
}

// openApp builds the engine. Without durable the store is in memory; without
// sink clusters are not handed off.
func openApp(ctx context.Context, flags *rootFlags, durable, sink bool) (*app, error) {
	comp, err := (&config.Loader{Path: flags.config, Logger: log.Logger}).Load()
	if err != nil {
		return nil, err
	}
	cfg := comp.Config

	var st store.Store = memstore.New()
	if durable {
		st, err = config.OpenStore(ctx, cfg.Storage)
		if err != nil {
			comp.Close()
			return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
		}
	}

	wm, err := comp.Window(st, log.Logger.With().Str("component", "window").Logger())
	if err != nil {
		st.Close()
		comp.Close()
		return nil, err
	}

	var out handoff.Sink = handoff.Discard{}
	if sink {
		out, err = handoff.Open(handoff.Options{
			Sink:    cfg.Handoff.Sink,
			Path:    cfg.Handoff.Path,
			Brokers: cfg.Handoff.KafkaBrokers,
			Topic:   cfg.Handoff.KafkaTopic,
			Logger:  log.Logger.With().Str("component", "handoff").Logger(),
		})
		if err != nil {
			st.Close()
			comp.Close()
			return nil, fmt.Errorf("open %s sink: %w", cfg.Handoff.Sink, err)
		}
	}

	engine, err := tidings.New(tidings.Options{
		Store:      st,
		Classifier: comp.Classifier,
		Clusterer:  comp.Clusterer,
		Window:     wm,
		Sink:       out,
		TextCap:    cfg.Classification.TextCap,
		Logger:     log.Logger.With().Str("component", "engine").Logger(),
	})
	if err != nil {
		out.Close()
		st.Close()
		comp.Close()
		return nil, err
	}
	return &app{comp: comp, store: st, engine: engine}, nil
}

func (a *app) Close() error {
	return errors.Join(a.engine.Close(), a.comp.Close())
}

func readItems(paths []string) ([]*ingest.Item, error) {
	r := &feed.Reader{Logger: log.Logger.With().Str("component", "feed").Logger()}
	var items []*ingest.Item
	for _, path := range paths {
		batch, err := r.ReadFile(path)
		if err != nil {
			return nil, err
		}
		items = append(items, batch...)
	}
	return items, nil
}

func newImportCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE...",
		Short: "Store items from JSONL exports",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := readItems(args)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), flags, true, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.Ingest(cmd.Context(), items); err != nil {
				return err
			}
			log.Info().Int("items", len(items)).Msg("items imported")
			return nil
		},
	}
}

type labelRecord struct {
	ID       string             `json:"id,omitempty"`
	Language string             `json:"language"`
	Topics   []string           `json:"topics"`
	Keywords []string           `json:"keywords,omitempty"`
	Scores   map[string]float64 `json:"scores,omitempty"`
}

func newClassifyCmd(flags *rootFlags) *cobra.Command {
	var text, lang string
	cmd := &cobra.Command{
		Use:   "classify [FILE...]",
		Short: "Print topic labels for items in JSONL exports or for --text",
		RunE: func(cmd *cobra.Command, args []string) error {
			if text == "" && len(args) == 0 {
				return fmt.Errorf("classify needs a FILE or --text")
			}
			a, err := openApp(cmd.Context(), flags, false, false)
			if err != nil {
				return err
			}
			defer a.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			if text != "" {
				res := a.comp.Classifier.Classify(cmd.Context(), text, lang)
				return enc.Encode(labelRecord{
					Language: lang,
					Topics:   res.Labels(),
					Keywords: res.Keywords,
					Scores:   res.Scores,
				})
			}

			items, err := readItems(args)
			if err != nil {
				return err
			}
			degraded, err := a.engine.Classify(cmd.Context(), items)
			if err != nil {
				return err
			}
			if degraded {
				log.Warn().Msg("semantic scoring unavailable, using keyword scores")
			}
			for _, it := range items {
				rec := labelRecord{
					ID:       it.ID,
					Language: it.Language,
					Topics:   it.Topics,
					Keywords: it.Keywords,
					Scores:   it.TopicScores,
				}
				if err := enc.Encode(rec); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "classify this text instead of files")
	cmd.Flags().StringVar(&lang, "lang", "", "language of --text (detected when empty)")
	return cmd
}

func newClusterCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cluster FILE...",
		Short: "Classify and cluster items from JSONL exports without storing them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := readItems(args)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), flags, false, false)
			if err != nil {
				return err
			}
			defer a.Close()

			results, _, err := a.engine.ClusterItems(cmd.Context(), items)
			if err != nil {
				return err
			}
			byID := make(map[string]*ingest.Item, len(items))
			for _, it := range items {
				byID[it.ID] = it
			}
			return writeResults(cmd.Context(), cmd.OutOrStdout(), results, byID)
		},
	}
}

func writeResults(ctx context.Context, w io.Writer, results []tidings.TopicResult, items map[string]*ingest.Item) error {
	out := handoff.NewJSONLWriter(w)
	for _, res := range results {
		scope := store.Scope{Topic: res.Topic}
		for _, cl := range res.Clusters {
			if scope.Start.IsZero() || cl.Start.Before(scope.Start) {
				scope.Start = cl.Start
			}
			if cl.End.After(scope.End) {
				scope.End = cl.End
			}
		}
		if err := out.Send(ctx, &handoff.Batch{Scope: scope, Clusters: res.Clusters, Items: items}); err != nil {
			return err
		}
	}
	return out.Close()
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Classify and cluster the stored items of the current window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), flags, true, true)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.engine.Run(cmd.Context())
			if report != nil {
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "run %s: %d items from %s to %s\n", report.RunID, report.Items,
					report.Scope.Start.Format(time.RFC3339), report.Scope.End.Format(time.RFC3339))
				for _, t := range report.Topics {
					fmt.Fprintf(w, "  %-20s %4d items %3d clusters\n", t.Topic, t.Items, len(t.Clusters))
				}
			}
			return err
		},
	}
}

func newClustersCmd(flags *rootFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "clusters TOPIC",
		Short: "List stored clusters of a topic, newest window first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), flags, true, false)
			if err != nil {
				return err
			}
			defer a.Close()

			recs, err := a.engine.Clusters(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, rec := range recs {
				items := make(map[string]*ingest.Item)
				for _, id := range rec.Cluster.RepresentativeIDs {
					it, err := a.store.GetItem(cmd.Context(), id)
					if err != nil {
						log.Debug().Str("item", id).Err(err).Msg("representative not found")
						continue
					}
					items[id] = it
				}
				b := &handoff.Batch{RunID: rec.RunID, Scope: rec.Scope, Clusters: []cluster.Cluster{rec.Cluster}, Items: items}
				for _, msg := range b.Messages() {
					if err := enc.Encode(msg); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum clusters to list (0 for all)")
	return cmd
}
