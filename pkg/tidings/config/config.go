package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/tidings/pkg/tidings/classify"
	"github.com/cognicore/tidings/pkg/tidings/internalerr"
	"github.com/cognicore/tidings/pkg/tidings/lexicon"
	"github.com/cognicore/tidings/pkg/tidings/vectorize"
	"github.com/cognicore/tidings/pkg/tidings/window"
)

// Config is the whole YAML configuration. Topics, synonyms and phrases sit
// at the top level and share their shape with standalone lexicon files.
type Config struct {
	lexicon.File `yaml:",inline"`

	StopWords           []string       `yaml:"stop_words"`
	Mode                string         `yaml:"mode"`
	MaxClustersPerTopic int            `yaml:"max_clusters_per_topic"`
	WindowHours         float64        `yaml:"window_hours"`
	MinCoherence        float64        `yaml:"min_coherence"`
	Languages           Languages      `yaml:"languages"`
	Classification      Classification `yaml:"classification"`
	Clustering          Clustering     `yaml:"clustering"`
	Embedding           Embedding      `yaml:"embedding"`
	Window              Window         `yaml:"window"`
	Storage             Storage        `yaml:"storage"`
	Handoff             Handoff        `yaml:"handoff"`
}

// Languages limits and weighs item languages.
type Languages struct {
	Allowed []string           `yaml:"allowed"`
	Weights map[string]float64 `yaml:"weights"`
}

// Classification tunes the topic classifier.
type Classification struct {
	Method            string       `yaml:"method"`
	KeywordSaturation int          `yaml:"keyword_saturation"`
	Workers           int          `yaml:"workers"`
	TextCap           int          `yaml:"text_cap"`
	Leet              bool         `yaml:"leet"`
	Anchor            AnchorRule   `yaml:"anchor"`
	Negative          NegativeRule `yaml:"negative"`
}

// AnchorRule mirrors classify.AnchorRule.
type AnchorRule struct {
	Mode  string  `yaml:"mode"`
	Boost float64 `yaml:"boost"`
}

// NegativeRule mirrors classify.NegativeRule.
type NegativeRule struct {
	Mode              string  `yaml:"mode"`
	Penalty           float64 `yaml:"penalty"`
	Factor            float64 `yaml:"factor"`
	EmbeddingOverride float64 `yaml:"embedding_override"`
}

// Clustering tunes vectorization and clustering.
type Clustering struct {
	Seed               int64   `yaml:"seed"`
	NInit              int     `yaml:"n_init"`
	MinDF              int     `yaml:"min_df"`
	MaxDF              float64 `yaml:"max_df"`
	MaxFeatures        int     `yaml:"max_features"`
	DistanceThreshold  float64 `yaml:"distance_threshold"`
	TopTerms           int     `yaml:"top_terms"`
	MaxRepresentatives int     `yaml:"max_representatives"`
	MinClusterSize     int     `yaml:"min_cluster_size"`
}

// Embedding selects and tunes the embedding backend.
type Embedding struct {
	Backend   string        `yaml:"backend"` // http | hashing | none
	URL       string        `yaml:"url"`
	Model     string        `yaml:"model"`
	APIKey    string        `yaml:"api_key"`
	Timeout   time.Duration `yaml:"timeout"`
	BatchSize int           `yaml:"batch_size"`
	CacheSize int           `yaml:"cache_size"`
	Dim       int           `yaml:"dim"` // hashing backend only
}

// Window selects rolling or reset windows.
type Window struct {
	Mode string `yaml:"mode"`
}

// Storage selects the store backend.
type Storage struct {
	Driver string `yaml:"driver"` // sqlite | postgres | memory
	DSN    string `yaml:"dsn"`
}

// Handoff selects where finished clusters go.
type Handoff struct {
	Sink         string   `yaml:"sink"` // jsonl | kafka | none
	Path         string   `yaml:"path"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

// Default returns the configuration used for every field the YAML omits.
func Default() *Config {
	return &Config{
		Mode:                string(vectorize.ModeLexical),
		MaxClustersPerTopic: 8,
		WindowHours:         window.DefaultHours,
		MinCoherence:        0.2,
		Classification: Classification{
			Method:            classify.MethodKeywords,
			KeywordSaturation: classify.DefaultSaturation,
			TextCap:           4000,
			Anchor:            AnchorRule{Mode: string(classify.DefaultAnchorRule.Mode), Boost: classify.DefaultAnchorRule.Boost},
			Negative:          NegativeRule{Mode: string(classify.DefaultNegativeRule.Mode), Penalty: classify.DefaultNegativeRule.Penalty},
		},
		Clustering: Clustering{
			NInit:              4,
			MinDF:              2,
			MaxDF:              0.85,
			MaxFeatures:        5000,
			DistanceThreshold:  0.35,
			TopTerms:           8,
			MaxRepresentatives: 5,
			MinClusterSize:     3,
		},
		Embedding: Embedding{
			Backend:   "none",
			Timeout:   20 * time.Second,
			BatchSize: 64,
			CacheSize: 4096,
			Dim:       256,
		},
		Window:  Window{Mode: string(window.ModeRolling)},
		Storage: Storage{Driver: "sqlite", DSN: "tidings.db"},
		Handoff: Handoff{Sink: "jsonl", Path: "clusters.jsonl", KafkaTopic: "clusters"},
	}
}

// Load reads path, applies TIDINGS_* environment overrides and validates the
// result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults, applies environment overrides and
// validates.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &internalerr.ConfigError{Reason: err.Error()}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from TIDINGS_* variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("TIDINGS_MODE"); v != "" {
		c.Mode = v
	}
	if v := getenv("TIDINGS_WINDOW_HOURS"); v != "" {
		h, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return &internalerr.ConfigError{Field: "TIDINGS_WINDOW_HOURS", Reason: err.Error()}
		}
		c.WindowHours = h
	}
	if v := getenv("TIDINGS_MAX_CLUSTERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &internalerr.ConfigError{Field: "TIDINGS_MAX_CLUSTERS", Reason: err.Error()}
		}
		c.MaxClustersPerTopic = n
	}
	if v := getenv("TIDINGS_MIN_COHERENCE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return &internalerr.ConfigError{Field: "TIDINGS_MIN_COHERENCE", Reason: err.Error()}
		}
		c.MinCoherence = f
	}
	if v := getenv("TIDINGS_EMBED_URL"); v != "" {
		c.Embedding.URL = v
		c.Embedding.Backend = "http"
	}
	if v := getenv("TIDINGS_EMBED_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := getenv("TIDINGS_EMBED_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
	if v := getenv("TIDINGS_DB"); v != "" {
		c.Storage.DSN = v
	}
	if v := getenv("TIDINGS_POSTGRES_URL"); v != "" {
		c.Storage.Driver = "postgres"
		c.Storage.DSN = v
	}
	return nil
}

// Validate reports the first fatal problem as a *internalerr.ConfigError.
func (c *Config) Validate() error {
	if len(c.Topics) == 0 {
		return &internalerr.ConfigError{Field: "topics", Reason: "at least one topic is required"}
	}
	if _, err := lexicon.Build(c.File); err != nil {
		return err
	}
	if _, err := vectorize.ParseMode(c.Mode); err != nil {
		return &internalerr.ConfigError{Field: "mode", Reason: err.Error()}
	}
	if c.MaxClustersPerTopic < 1 {
		return &internalerr.ConfigError{Field: "max_clusters_per_topic", Reason: "must be at least 1"}
	}
	if !(c.WindowHours > 0) || math.IsInf(c.WindowHours, 1) {
		return &internalerr.ConfigError{Field: "window_hours", Reason: "must be positive and finite"}
	}
	if !inUnit(c.MinCoherence) {
		return &internalerr.ConfigError{Field: "min_coherence", Reason: fmt.Sprintf("%v not in [0,1]", c.MinCoherence)}
	}
	for lang, w := range c.Languages.Weights {
		if w < 0 {
			return &internalerr.ConfigError{Field: "languages.weights." + lang, Reason: "must not be negative"}
		}
	}

	cl := c.Classification
	switch cl.Method {
	case classify.MethodKeywords, classify.MethodHybrid:
	default:
		return &internalerr.ConfigError{Field: "classification.method", Reason: fmt.Sprintf("unknown method %q", cl.Method)}
	}
	if err := c.AnchorRule().Validate(); err != nil {
		return err
	}
	if err := c.NegativeRule().Validate(); err != nil {
		return err
	}

	cc := c.Clustering
	if cc.MaxDF < 0 || cc.MaxDF > 1 {
		return &internalerr.ConfigError{Field: "clustering.max_df", Reason: fmt.Sprintf("%v not in [0,1]", cc.MaxDF)}
	}
	if cc.DistanceThreshold < 0 || cc.DistanceThreshold > 2 {
		return &internalerr.ConfigError{Field: "clustering.distance_threshold", Reason: fmt.Sprintf("%v not in [0,2]", cc.DistanceThreshold)}
	}

	switch c.Embedding.Backend {
	case "none", "hashing":
	case "http":
		if c.Embedding.URL == "" || c.Embedding.Model == "" {
			return &internalerr.ConfigError{Field: "embedding", Reason: "http backend needs url and model"}
		}
	default:
		return &internalerr.ConfigError{Field: "embedding.backend", Reason: fmt.Sprintf("unknown backend %q", c.Embedding.Backend)}
	}
	if c.Embedding.Timeout < 0 {
		return &internalerr.ConfigError{Field: "embedding.timeout", Reason: "must not be negative"}
	}

	switch window.Mode(c.Window.Mode) {
	case window.ModeRolling, window.ModeReset:
	default:
		return &internalerr.ConfigError{Field: "window.mode", Reason: fmt.Sprintf("unknown mode %q", c.Window.Mode)}
	}

	switch c.Storage.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Storage.DSN == "" {
			return &internalerr.ConfigError{Field: "storage.dsn", Reason: c.Storage.Driver + " needs a dsn"}
		}
	default:
		return &internalerr.ConfigError{Field: "storage.driver", Reason: fmt.Sprintf("unknown driver %q", c.Storage.Driver)}
	}

	switch c.Handoff.Sink {
	case "none":
	case "jsonl":
		if c.Handoff.Path == "" {
			return &internalerr.ConfigError{Field: "handoff.path", Reason: "jsonl sink needs a path"}
		}
	case "kafka":
		if len(c.Handoff.KafkaBrokers) == 0 || c.Handoff.KafkaTopic == "" {
			return &internalerr.ConfigError{Field: "handoff", Reason: "kafka sink needs brokers and a topic"}
		}
	default:
		return &internalerr.ConfigError{Field: "handoff.sink", Reason: fmt.Sprintf("unknown sink %q", c.Handoff.Sink)}
	}
	return nil
}

// AnchorRule returns the configured anchor rule.
func (c *Config) AnchorRule() classify.AnchorRule {
	return classify.AnchorRule{Mode: classify.AnchorMode(c.Classification.Anchor.Mode), Boost: c.Classification.Anchor.Boost}
}

// NegativeRule returns the configured negative rule.
func (c *Config) NegativeRule() classify.NegativeRule {
	n := c.Classification.Negative
	return classify.NegativeRule{
		Mode:              classify.NegativeMode(n.Mode),
		Penalty:           n.Penalty,
		Factor:            n.Factor,
		EmbeddingOverride: n.EmbeddingOverride,
	}
}

func inUnit(v float64) bool { return v >= 0 && v <= 1 }
