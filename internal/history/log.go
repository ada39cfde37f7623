// Package history keeps the bounded conversational record of past
// interactions, both the in-memory window fed back to the intent
// resolver and the on-disk archive.
package history

import (
	"fmt"

	"github.com/yourorg/apiagent/pkg/types"
)

// DefaultCapacity is the in-memory window size.
const DefaultCapacity = 10

// Log is a fixed-capacity ordered record of interactions. Oldest
// entries are evicted first. Entries are never mutated after insertion.
type Log struct {
	capacity int
	entries  []types.Interaction
}

func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{capacity: capacity}
}

// Add appends one interaction, evicting the oldest when full.
func (l *Log) Add(it types.Interaction) {
	l.entries = append(l.entries, it)
	if len(l.entries) > l.capacity {
		l.entries = l.entries[len(l.entries)-l.capacity:]
	}
}

// Len returns the number of retained interactions.
func (l *Log) Len() int { return len(l.entries) }

// Entries returns the retained interactions oldest first.
func (l *Log) Entries() []types.Interaction {
	out := make([]types.Interaction, len(l.entries))
	copy(out, l.entries)
	return out
}

// ContextLines renders at most n recent interactions, newest first, as
// compact free-text lines for the oracle prompt.
func (l *Log) ContextLines(n int) []string {
	var lines []string
	for i := len(l.entries) - 1; i >= 0 && len(lines) < n; i-- {
		e := l.entries[i]
		result := e.Response.Error
		if result == "" {
			result = fmt.Sprintf("Status %d", e.Response.Status)
		}
		lines = append(lines, fmt.Sprintf("User: %q. Agent Call: %s %s (API: %s). Result: %s",
			e.NaturalLanguage, e.Request.Method, e.Request.Path, e.Request.API, result))
	}
	return lines
}
