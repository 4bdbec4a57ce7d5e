package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScopeOverlaps(t *testing.T) {
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	scope := func(topic string, from, to int) Scope {
		return Scope{Topic: topic, Start: base.Add(time.Duration(from) * time.Hour), End: base.Add(time.Duration(to) * time.Hour)}
	}
	window := scope("cyber", 0, 36)

	tests := []struct {
		name  string
		other Scope
		want  bool
	}{
		{"same window", scope("cyber", 0, 36), true},
		{"rolled forward", scope("cyber", 2, 38), true},
		{"contained", scope("cyber", 10, 20), true},
		{"adjacent", scope("cyber", 36, 72), false},
		{"disjoint", scope("cyber", 40, 76), false},
		{"other topic", scope("energy", 0, 36), false},
		{"empty window at start", scope("cyber", 0, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, window.Overlaps(tt.other))
			assert.Equal(t, tt.want, tt.other.Overlaps(window), "symmetric")
		})
	}

	empty := scope("cyber", 5, 5)
	assert.True(t, empty.Overlaps(empty), "an empty window replaces itself")
}
