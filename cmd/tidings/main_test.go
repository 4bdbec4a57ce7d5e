package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/tidings/internal/handoff"
)

func writeFixture(t *testing.T) (cfgPath, itemsPath, outPath string) {
	t.Helper()
	dir := t.TempDir()
	outPath = filepath.Join(dir, "clusters.jsonl")

	cfgPath = filepath.Join(dir, "tidings.yaml")
	cfg := fmt.Sprintf(`
topics:
  cyber: {keywords: [ransomware, breach, malware]}
  energy: {keywords: [refinery, pipeline, outage]}
storage: {driver: sqlite, dsn: %q}
handoff: {sink: jsonl, path: %q}
`, filepath.Join(dir, "tidings.db"), outPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	at := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	lines := []string{
		`{"id":"c1","collected_at":"` + at + `","title":"Ransomware breach shuts hospital network"}`,
		`{"id":"c2","collected_at":"` + at + `","title":"Hospital ransomware breach delays surgeries"}`,
		`{"url":"https://example.org/e1","collected_at":"` + at + `","title":"Refinery outage after pipeline fire"}`,
		`{"id":"x1","collected_at":"` + at + `","title":"Local team wins the cup final"}`,
	}
	itemsPath = filepath.Join(dir, "items.jsonl")
	require.NoError(t, os.WriteFile(itemsPath, []byte(strings.Join(lines, "\n")), 0o644))
	return cfgPath, itemsPath, outPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestClassifyCommand(t *testing.T) {
	cfg, items, _ := writeFixture(t)
	out, err := execute(t, "--config", cfg, "classify", items)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)

	var rec labelRecord
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "c1", rec.ID)
	assert.Equal(t, []string{"cyber"}, rec.Topics)
	assert.Contains(t, rec.Keywords, "ransomware")

	require.NoError(t, json.Unmarshal([]byte(lines[3]), &rec))
	assert.Empty(t, rec.Topics)
}

func TestClassifyText(t *testing.T) {
	cfg, _, _ := writeFixture(t)
	out, err := execute(t, "--config", cfg, "classify", "--text", "Refinery outage after pipeline fire", "--lang", "en")
	require.NoError(t, err)

	var rec labelRecord
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &rec))
	assert.Equal(t, []string{"energy"}, rec.Topics)
	assert.Equal(t, "en", rec.Language)
}

func TestClusterCommand(t *testing.T) {
	cfg, items, _ := writeFixture(t)
	out, err := execute(t, "--config", cfg, "cluster", items)
	require.NoError(t, err)

	topics := map[string]int{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var msg handoff.Message
		require.NoError(t, json.Unmarshal([]byte(line), &msg))
		topics[msg.Topic] += msg.Size
	}
	assert.Equal(t, map[string]int{"cyber": 2, "energy": 1}, topics)
}

func TestImportRunAndList(t *testing.T) {
	cfg, items, sinkPath := writeFixture(t)

	_, err := execute(t, "--config", cfg, "import", items)
	require.NoError(t, err)

	out, err := execute(t, "--config", cfg, "run")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "run "), out)
	assert.Contains(t, out, "4 items")
	assert.Contains(t, out, "cyber")
	assert.Contains(t, out, "energy")

	data, err := os.ReadFile(sinkPath)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	out, err = execute(t, "--config", cfg, "clusters", "cyber")
	require.NoError(t, err)
	var msg handoff.Message
	require.NoError(t, json.Unmarshal([]byte(strings.Split(strings.TrimSpace(out), "\n")[0]), &msg))
	assert.Equal(t, "cyber", msg.Topic)
	require.NotEmpty(t, msg.Representatives)
	assert.NotEmpty(t, msg.Representatives[0].Title)
}

func TestMissingConfig(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "none.yaml"), "run")
	assert.Error(t, err)
}

func TestArgsRequired(t *testing.T) {
	cfg, _, _ := writeFixture(t)
	_, err := execute(t, "--config", cfg, "classify")
	assert.Error(t, err)
}
