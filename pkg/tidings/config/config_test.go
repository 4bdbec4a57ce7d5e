package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/tidings/pkg/tidings/classify"
	"github.com/cognicore/tidings/pkg/tidings/internalerr"
)

const fullYAML = `
topics:
  cyber:
    keywords: [ransomware, breach]
    keywords_by_lang: {de: [hackerangriff]}
    anchors: [zero-day]
    negatives: [breach of contract]
    seeds: ["ransomware attack on hospitals"]
    threshold: 0.3
    embedding_weight: 0.4
  energy:
    keywords: [pipeline, refinery, grid]
synonyms:
  - canonical: ransomware
    variants: [crypto-locker]
phrases:
  - canonical: zero-day
    variants: [zero day, 0day]
mode: semantic
max_clusters_per_topic: 3
window_hours: 12
min_coherence: 0.25
languages: {allowed: [en, de], weights: {de: 0.9}}
classification:
  method: hybrid
  keyword_saturation: 2
  workers: 4
  text_cap: 2000
  anchor: {mode: add, boost: 0.2}
  negative: {mode: scale, factor: 0.5, embedding_override: 0.8}
clustering:
  seed: 42
  n_init: 2
  distance_threshold: 0.3
embedding:
  backend: http
  url: http://localhost:8080/v1/embeddings
  model: all-MiniLM-L6-v2
  timeout: 5s
  batch_size: 16
window: {mode: reset}
storage: {driver: memory}
handoff: {sink: kafka, kafka_brokers: ["localhost:9092"], kafka_topic: digests}
`

func TestParseFull(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	require.NoError(t, err)

	require.Len(t, cfg.Topics, 2)
	cyber := cfg.Topics["cyber"]
	assert.Equal(t, []string{"ransomware", "breach"}, cyber.Keywords)
	assert.Equal(t, []string{"hackerangriff"}, cyber.KeywordsByLang["de"])
	assert.Len(t, cfg.Synonyms, 1)
	assert.Len(t, cfg.Phrases, 1)

	assert.Equal(t, "semantic", cfg.Mode)
	assert.Equal(t, 3, cfg.MaxClustersPerTopic)
	assert.Equal(t, 12.0, cfg.WindowHours)
	assert.InDelta(t, 0.25, cfg.MinCoherence, 1e-9)
	assert.Equal(t, []string{"en", "de"}, cfg.Languages.Allowed)
	assert.InDelta(t, 0.9, cfg.Languages.Weights["de"], 1e-9)

	assert.Equal(t, classify.MethodHybrid, cfg.Classification.Method)
	assert.Equal(t, 2, cfg.Classification.KeywordSaturation)
	assert.Equal(t, classify.AnchorRule{Mode: classify.AnchorAdd, Boost: 0.2}, cfg.AnchorRule())
	neg := cfg.NegativeRule()
	assert.Equal(t, classify.NegativeScale, neg.Mode)
	assert.InDelta(t, 0.5, neg.Factor, 1e-9)
	assert.InDelta(t, 0.8, neg.EmbeddingOverride, 1e-9)

	assert.Equal(t, int64(42), cfg.Clustering.Seed)
	assert.Equal(t, 2, cfg.Clustering.NInit)
	assert.Equal(t, 5000, cfg.Clustering.MaxFeatures, "unset fields keep their defaults")
	assert.Equal(t, 5*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, 16, cfg.Embedding.BatchSize)
	assert.Equal(t, 4096, cfg.Embedding.CacheSize)
	assert.Equal(t, "reset", cfg.Window.Mode)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "kafka", cfg.Handoff.Sink)
	assert.Equal(t, "digests", cfg.Handoff.KafkaTopic)
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("topics:\n  cyber:\n    keywords: [ransomware]\n"))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Mode, cfg.Mode)
	assert.Equal(t, 8, cfg.MaxClustersPerTopic)
	assert.Equal(t, 36.0, cfg.WindowHours)
	assert.Equal(t, classify.MethodKeywords, cfg.Classification.Method)
	assert.Equal(t, classify.DefaultAnchorRule, cfg.AnchorRule())
	assert.Equal(t, classify.DefaultNegativeRule, cfg.NegativeRule())
	assert.Equal(t, "none", cfg.Embedding.Backend)
	assert.Equal(t, 20*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
		topic string
	}{
		{name: "no topics", yaml: "mode: lexical", field: "topics"},
		{name: "empty topic", yaml: "topics:\n  cyber: {}", field: "keywords", topic: "cyber"},
		{name: "threshold", yaml: "topics:\n  cyber: {keywords: [x], threshold: 1.5}", field: "threshold", topic: "cyber"},
		{name: "embedding weight", yaml: "topics:\n  cyber: {keywords: [x], embedding_weight: -0.1}", field: "embedding_weight", topic: "cyber"},
		{name: "mode", yaml: "mode: neural", field: "mode"},
		{name: "max clusters", yaml: "max_clusters_per_topic: 0", field: "max_clusters_per_topic"},
		{name: "window hours", yaml: "window_hours: -1", field: "window_hours"},
		{name: "window hours nan", yaml: "window_hours: .nan", field: "window_hours"},
		{name: "min coherence", yaml: "min_coherence: 1.5", field: "min_coherence"},
		{name: "method", yaml: "classification: {method: llm}", field: "classification.method"},
		{name: "anchor mode", yaml: "classification: {anchor: {mode: double}}", field: "classification.anchor.mode"},
		{name: "soft boost", yaml: "classification: {anchor: {mode: soft, boost: 2}}", field: "classification.anchor.boost"},
		{name: "negative factor", yaml: "classification: {negative: {mode: scale, factor: 3}}", field: "classification.negative.factor"},
		{name: "backend", yaml: "embedding: {backend: grpc}", field: "embedding.backend"},
		{name: "http without url", yaml: "embedding: {backend: http, model: m}", field: "embedding"},
		{name: "window mode", yaml: "window: {mode: sliding}", field: "window.mode"},
		{name: "storage driver", yaml: "storage: {driver: mysql}", field: "storage.driver"},
		{name: "kafka without brokers", yaml: "handoff: {sink: kafka}", field: "handoff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.yaml
			if tt.field != "topics" && tt.topic == "" {
				data = "topics:\n  cyber: {keywords: [ransomware]}\n" + data
			}
			_, err := Parse([]byte(data))
			require.Error(t, err)
			assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)

			var ce *internalerr.ConfigError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.field, ce.Field)
			assert.Equal(t, tt.topic, ce.Topic)
		})
	}
}

func TestParseMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("topics: [unclosed"))
	assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TIDINGS_MODE":          "semantic",
		"TIDINGS_WINDOW_HOURS":  "6",
		"TIDINGS_MAX_CLUSTERS":  "2",
		"TIDINGS_MIN_COHERENCE": "0.4",
		"TIDINGS_EMBED_URL":     "http://embed:8080/v1/embeddings",
		"TIDINGS_EMBED_MODEL":   "e5-small",
		"TIDINGS_EMBED_API_KEY": "secret",
		"TIDINGS_POSTGRES_URL":  "postgres://tidings@db/tidings",
	}
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(func(k string) string { return env[k] }))

	assert.Equal(t, "semantic", cfg.Mode)
	assert.Equal(t, 6.0, cfg.WindowHours)
	assert.Equal(t, 2, cfg.MaxClustersPerTopic)
	assert.InDelta(t, 0.4, cfg.MinCoherence, 1e-9)
	assert.Equal(t, "http", cfg.Embedding.Backend)
	assert.Equal(t, "http://embed:8080/v1/embeddings", cfg.Embedding.URL)
	assert.Equal(t, "e5-small", cfg.Embedding.Model)
	assert.Equal(t, "secret", cfg.Embedding.APIKey)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "postgres://tidings@db/tidings", cfg.Storage.DSN)

	err := Default().ApplyEnv(func(k string) string {
		if k == "TIDINGS_WINDOW_HOURS" {
			return "a day"
		}
		return ""
	})
	assert.ErrorIs(t, err, internalerr.ErrInvalidConfig)
}

func TestFractionalWindowHours(t *testing.T) {
	cfg, err := Parse([]byte("topics:\n  cyber: {keywords: [ransomware]}\nwindow_hours: 1.5\n"))
	require.NoError(t, err)
	assert.InDelta(t, 1.5, cfg.WindowHours, 1e-9)

	cfg = Default()
	require.NoError(t, cfg.ApplyEnv(func(k string) string {
		if k == "TIDINGS_WINDOW_HOURS" {
			return "0.5"
		}
		return ""
	}))
	assert.InDelta(t, 0.5, cfg.WindowHours, 1e-9)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tidings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Topics, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
