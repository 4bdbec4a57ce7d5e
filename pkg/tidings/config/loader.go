package config

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/cognicore/tidings/pkg/tidings/classify"
	"github.com/cognicore/tidings/pkg/tidings/cluster"
	"github.com/cognicore/tidings/pkg/tidings/embed"
	"github.com/cognicore/tidings/pkg/tidings/ingest"
	"github.com/cognicore/tidings/pkg/tidings/langdetect"
	"github.com/cognicore/tidings/pkg/tidings/lexicon"
	"github.com/cognicore/tidings/pkg/tidings/stoplist"
	"github.com/cognicore/tidings/pkg/tidings/store"
	"github.com/cognicore/tidings/pkg/tidings/store/memstore"
	"github.com/cognicore/tidings/pkg/tidings/store/postgres"
	"github.com/cognicore/tidings/pkg/tidings/store/sqlite"
	"github.com/cognicore/tidings/pkg/tidings/vectorize"
	"github.com/cognicore/tidings/pkg/tidings/window"
)

// Loader reads a configuration file and constructs the components of a run.
type Loader struct {
	Path   string
	Logger zerolog.Logger
}

// Components holds everything built from one configuration.
type Components struct {
	Config     *Config
	Lexicon    *lexicon.Lexicon
	Stops      *stoplist.Manager
	Pipeline   *ingest.Pipeline
	Detector   *langdetect.Detector
	Model      embed.Model // nil when embedding.backend is none
	Classifier *classify.Classifier
	Vectorizer vectorize.Vectorizer
	Clusterer  *cluster.Clusterer
}

// Load reads the file and builds the components.
func (l *Loader) Load() (*Components, error) {
	cfg, err := Load(l.Path)
	if err != nil {
		return nil, err
	}
	return Build(cfg, l.Logger)
}

// Build constructs the components of a validated configuration.
func Build(cfg *Config, logger zerolog.Logger) (*Components, error) {
	comp := &Components{Config: cfg}

	lex, err := lexicon.Build(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("build lexicon: %w", err)
	}
	comp.Lexicon = lex
	stats := lex.Stats()
	logger.Debug().
		Int("topics", stats.Topics).
		Int("keywords", stats.Keywords).
		Int("synonym_groups", stats.SynonymGroups).
		Int("phrases", stats.Phrases).
		Msg("lexicon loaded")
	comp.Stops = stoplist.NewManager(cfg.StopWords)
	// Keywords are never dropped as stop words.
	for _, t := range lex.Topics() {
		for _, kw := range t.Keywords {
			comp.Stops.Remove(kw)
		}
	}
	comp.Pipeline = ingest.NewPipeline(lex, comp.Stops, cfg.Classification.Leet, cfg.Classification.TextCap)
	comp.Detector = langdetect.New(comp.Stops, langdetect.Options{TextCap: cfg.Classification.TextCap})

	model, err := buildModel(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("build embedding model: %w", err)
	}
	comp.Model = model

	var method classify.ScoringMethod = classify.Lexical{}
	if cfg.Classification.Method == classify.MethodHybrid {
		method = classify.NewSemantic(model, lex.Topics(), classify.SemanticOptions{
			BatchSize: cfg.Embedding.BatchSize,
			Timeout:   cfg.Embedding.Timeout,
		})
	}
	comp.Classifier, err = classify.New(lex, classify.Options{
		Method:           method,
		Anchor:           cfg.AnchorRule(),
		Negative:         cfg.NegativeRule(),
		Saturation:       cfg.Classification.KeywordSaturation,
		LanguageWeights:  cfg.Languages.Weights,
		AllowedLanguages: cfg.Languages.Allowed,
		Workers:          cfg.Classification.Workers,
		Pipeline:         comp.Pipeline,
		Detector:         comp.Detector,
		Logger:           logger.With().Str("component", "classify").Logger(),
	})
	if err != nil {
		comp.Close()
		return nil, fmt.Errorf("build classifier: %w", err)
	}

	if vectorize.Mode(cfg.Mode) == vectorize.ModeSemantic {
		comp.Vectorizer = vectorize.NewSemantic(model, cfg.Embedding.BatchSize, cfg.Embedding.Timeout)
	} else {
		comp.Vectorizer = vectorize.NewTFIDF(comp.Pipeline, vectorize.TFIDFOptions{
			MinDF:       cfg.Clustering.MinDF,
			MaxDF:       cfg.Clustering.MaxDF,
			MaxFeatures: cfg.Clustering.MaxFeatures,
		})
	}

	comp.Clusterer = cluster.New(comp.Vectorizer, comp.Pipeline, cluster.Options{
		MaxClusters:        cfg.MaxClustersPerTopic,
		Seed:               cfg.Clustering.Seed,
		NInit:              cfg.Clustering.NInit,
		DistanceThreshold:  cfg.Clustering.DistanceThreshold,
		TopTerms:           cfg.Clustering.TopTerms,
		MaxRepresentatives: cfg.Clustering.MaxRepresentatives,
		MinCoherence:       cfg.MinCoherence,
		MinClusterSize:     cfg.Clustering.MinClusterSize,
		Logger:             logger.With().Str("component", "cluster").Logger(),
	})
	return comp, nil
}

// buildModel returns nil for the none backend.
func buildModel(e Embedding) (embed.Model, error) {
	var base embed.Model
	switch e.Backend {
	case "http":
		base = &embed.Client{
			BaseURL:    e.URL,
			APIKey:     e.APIKey,
			Model:      e.Model,
			HTTPClient: &http.Client{Timeout: e.Timeout},
		}
	case "hashing":
		base = embed.NewHashing(e.Dim)
	default:
		return nil, nil
	}
	cached, err := embed.NewCached(base, e.CacheSize)
	if err != nil {
		return nil, err
	}
	return cached, nil
}

// Window returns the window manager. Reset windows keep their marks in marks.
func (c *Components) Window(marks window.MarkStore, logger zerolog.Logger) (*window.Manager, error) {
	return window.NewManager(marks, window.Options{
		Mode:   window.Mode(c.Config.Window.Mode),
		Hours:  c.Config.WindowHours,
		Logger: logger,
	})
}

// Close releases the embedding model.
func (c *Components) Close() error {
	if c.Model != nil {
		return c.Model.Close()
	}
	return nil
}

// OpenStore opens the configured store backend.
func OpenStore(ctx context.Context, s Storage) (store.Store, error) {
	switch s.Driver {
	case "memory":
		return memstore.New(), nil
	case "postgres":
		st, err := postgres.Open(ctx, s.DSN)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "sqlite", "":
		return sqlite.OpenSQLite(ctx, s.DSN)
	}
	return nil, fmt.Errorf("unknown storage driver %q", s.Driver)
}
