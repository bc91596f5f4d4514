// File: internal/runtime/logbuffer.go
package runtime

import (
	"strings"
	"sync"
	"time"
)

// LogEntry is one captured line of service output with its arrival time and a
// best-effort level classification.
type LogEntry struct {
	Time   time.Time `json:"time"`
	Level  string    `json:"level"`
	Line   string    `json:"line"`
	Source string    `json:"source"` // "stdout", "stderr", "file"
}

// LogBuffer is a bounded, ordered ring of service log lines. Appends past
// capacity evict the oldest entries; readers always see arrival order.
type LogBuffer struct {
	mu      sync.Mutex
	entries []LogEntry
	head    int
	filled  bool
}

func NewLogBuffer(capacity int) *LogBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &LogBuffer{entries: make([]LogEntry, capacity)}
}

// Append records one raw line from the given source, classifying its level.
func (b *LogBuffer) Append(source, line string) {
	b.AppendEntry(LogEntry{
		Time:   time.Now(),
		Level:  classifyLevel(source, line),
		Line:   line,
		Source: source,
	})
}

func (b *LogBuffer) AppendEntry(e LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.head] = e
	b.head = (b.head + 1) % len(b.entries)
	if b.head == 0 {
		b.filled = true
	}
}

// Tail returns up to n most recent entries, oldest first.
func (b *LogBuffer) Tail(n int) []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	all := b.orderedLocked()
	if n < len(all) {
		all = all[len(all)-n:]
	}
	return all
}

// ErrorsSince returns the error-level entries newer than t, oldest first.
func (b *LogBuffer) ErrorsSince(t time.Time) []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []LogEntry
	for _, e := range b.orderedLocked() {
		if e.Level == "error" && e.Time.After(t) {
			out = append(out, e)
		}
	}
	return out
}

// Len reports how many entries are currently held.
func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.filled {
		return len(b.entries)
	}
	return b.head
}

func (b *LogBuffer) orderedLocked() []LogEntry {
	if !b.filled {
		out := make([]LogEntry, b.head)
		copy(out, b.entries[:b.head])
		return out
	}
	out := make([]LogEntry, 0, len(b.entries))
	out = append(out, b.entries[b.head:]...)
	out = append(out, b.entries[:b.head]...)
	return out
}

// classifyLevel infers a level from the line text; stderr lines default to
// error when nothing in the text says otherwise.
func classifyLevel(source, line string) string {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "error") || strings.Contains(lower, "exception") ||
		strings.Contains(lower, "fatal") || strings.Contains(lower, "unhandled"):
		return "error"
	case strings.Contains(lower, "warn"):
		return "warn"
	case source == "stderr":
		return "error"
	default:
		return "info"
	}
}
