package ingest

import (
	"errors"
	"strings"
	"time"
)

// DefaultTextCap bounds the text handed to language detection, keyword
// matching and embedding.
const DefaultTextCap = 4000

// Item is a single collected document. Collection fills the content fields;
// classification fills Language, Topics, Keywords and TopicScores.
type Item struct {
	ID          string
	URL         string
	Source      string
	CollectedAt time.Time
	Title       string
	Body        string

	Language           string
	LanguageConfidence float64
	Topics             []string           // sorted
	Keywords           []string           // matched keywords, first-match order
	TopicScores        map[string]float64 // combined score per topic, including topics below threshold
}

// Validate checks if the item has the fields the engine relies on.
func (it *Item) Validate() error {
	if strings.TrimSpace(it.ID) == "" {
		return errors.New("item id is required")
	}
	if it.CollectedAt.IsZero() {
		return errors.New("item collected time is required")
	}
	return nil
}

// Text returns title and body with markup removed, capped at limit runes.
// A non-positive limit disables the cap.
func (it *Item) Text(limit int) string {
	title := StripHTML(it.Title)
	body := StripHTML(it.Body)

	var text string
	switch {
	case title == "":
		text = body
	case body == "":
		text = title
	default:
		text = title + "\n" + body
	}
	return Truncate(text, limit)
}

// Truncate cuts s to at most limit runes. A non-positive limit returns s.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
