package feed

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cognicore/tidings/pkg/tidings/ingest"
)

// Record is one line of an item export. Exports from different collectors
// disagree on a few names, so published_at and text are accepted as
// fallbacks.
type Record struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	CollectedAt time.Time `json:"collected_at"`
	PublishedAt time.Time `json:"published_at"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Text        string    `json:"text"`
	Language    string    `json:"language"`
}

// Reader decodes JSONL item exports.
type Reader struct {
	Now    func() time.Time // collected time for records without one
	Logger zerolog.Logger
}

const maxLine = 4 << 20

// Read decodes every line of r. Malformed lines and records without an ID
// or URL are logged and skipped.
func (r *Reader) Read(src io.Reader) ([]*ingest.Item, error) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 64*1024), maxLine)

	var items []*ingest.Item
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			r.Logger.Warn().Int("line", line).Err(err).Msg("skipping malformed record")
			continue
		}
		it, ok := rec.Item(now)
		if !ok {
			r.Logger.Warn().Int("line", line).Msg("skipping record without id or url")
			continue
		}
		items = append(items, it)
	}
	if err := sc.Err(); err != nil {
		return items, fmt.Errorf("read line %d: %w", line+1, err)
	}
	return items, nil
}

// ReadFile reads a JSONL export from path.
func (r *Reader) ReadFile(path string) ([]*ingest.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	items, err := r.Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return items, nil
}

// Item converts the record. Records without an ID get one derived from
// their URL, so re-importing the same export updates rather than duplicates.
func (rec Record) Item(now func() time.Time) (*ingest.Item, bool) {
	id := strings.TrimSpace(rec.ID)
	url := strings.TrimSpace(rec.URL)
	if id == "" {
		if url == "" {
			return nil, false
		}
		id = ItemID(url)
	}

	at := rec.CollectedAt
	if at.IsZero() {
		at = rec.PublishedAt
	}
	if at.IsZero() {
		at = now()
	}
	body := rec.Body
	if body == "" {
		body = rec.Text
	}

	return &ingest.Item{
		ID:          id,
		URL:         url,
		Source:      rec.Source,
		CollectedAt: at.UTC(),
		Title:       rec.Title,
		Body:        body,
		Language:    rec.Language,
	}, true
}

// ItemID derives a stable ID from a URL.
func ItemID(url string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(url)).String()
}
