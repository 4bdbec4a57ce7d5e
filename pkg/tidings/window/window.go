// Package window decides which items a run looks at and groups them by
// topic.
package window

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/cognicore/tidings/pkg/tidings/ingest"
	"github.com/cognicore/tidings/pkg/tidings/internalerr"
)

// Mode selects how the window start is found.
type Mode string

const (
	// ModeRolling looks back a fixed number of hours from now.
	ModeRolling Mode = "rolling"
	// ModeReset starts at the last stored reset mark.
	ModeReset Mode = "reset"
)

// DefaultHours is the rolling window length.
const DefaultHours = 36

// DefaultMarkName is the mark used by reset windows.
const DefaultMarkName = "window.reset"

// MarkStore persists reset marks. store.Store satisfies it.
type MarkStore interface {
	Mark(ctx context.Context, name string) (time.Time, bool, error)
	SetMark(ctx context.Context, name string, at time.Time) error
}

// Options configure a Manager.
type Options struct {
	Mode     Mode
	Hours    float64
	MarkName string
	Logger   zerolog.Logger
}

// Scope is an inclusive time range.
type Scope struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies within the scope.
func (s Scope) Contains(t time.Time) bool {
	return !t.Before(s.Start) && !t.After(s.End)
}

// Manager computes window scopes.
type Manager struct {
	marks MarkStore
	opts  Options
}

// NewManager creates a window manager. Reset mode needs a mark store.
func NewManager(marks MarkStore, opts Options) (*Manager, error) {
	if opts.Mode == "" {
		opts.Mode = ModeRolling
	}
	if opts.Hours <= 0 {
		opts.Hours = DefaultHours
	}
	if opts.MarkName == "" {
		opts.MarkName = DefaultMarkName
	}
	switch opts.Mode {
	case ModeRolling:
	case ModeReset:
		if marks == nil {
			return nil, &internalerr.ConfigError{Field: "window.mode", Reason: "reset windows need a store for marks"}
		}
	default:
		return nil, &internalerr.ConfigError{Field: "window.mode", Reason: fmt.Sprintf("unknown mode %q", opts.Mode)}
	}
	return &Manager{marks: marks, opts: opts}, nil
}

// Mode returns the configured mode.
func (m *Manager) Mode() Mode { return m.opts.Mode }

// Scope returns the window ending at now. A reset window without a usable
// mark falls back to the rolling window.
func (m *Manager) Scope(ctx context.Context, now time.Time) (Scope, error) {
	rolling := Scope{Start: now.Add(-time.Duration(m.opts.Hours * float64(time.Hour))), End: now}
	if m.opts.Mode != ModeReset {
		return rolling, nil
	}

	mark, ok, err := m.marks.Mark(ctx, m.opts.MarkName)
	if err != nil {
		return Scope{}, fmt.Errorf("read window mark: %w", err)
	}
	if !ok || mark.After(now) {
		m.opts.Logger.Debug().Bool("mark", ok).Msg("no usable reset mark, using rolling window")
		return rolling, nil
	}
	return Scope{Start: mark, End: now}, nil
}

// Reset moves the reset mark to at, so the next reset window starts there.
// It does nothing for rolling windows.
func (m *Manager) Reset(ctx context.Context, at time.Time) error {
	if m.opts.Mode != ModeReset {
		return nil
	}
	if err := m.marks.SetMark(ctx, m.opts.MarkName, at); err != nil {
		return fmt.Errorf("write window mark: %w", err)
	}
	return nil
}

// Select keeps the items collected within scope, preserving order.
func Select(items []*ingest.Item, scope Scope) []*ingest.Item {
	var out []*ingest.Item
	for _, it := range items {
		if scope.Contains(it.CollectedAt) {
			out = append(out, it)
		}
	}
	return out
}

// GroupByTopic maps each topic to its labeled items. Multi-label items
// appear in every group, unlabeled items in none. Topics are returned
// sorted.
func GroupByTopic(items []*ingest.Item) ([]string, map[string][]*ingest.Item) {
	groups := make(map[string][]*ingest.Item)
	for _, it := range items {
		seen := make(map[string]bool, len(it.Topics))
		for _, topic := range it.Topics {
			if seen[topic] {
				continue
			}
			seen[topic] = true
			groups[topic] = append(groups[topic], it)
		}
	}
	topics := make([]string, 0, len(groups))
	for topic := range groups {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics, groups
}
