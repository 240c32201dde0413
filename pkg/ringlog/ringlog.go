// Package ringlog provides a capped, append-only event log. When the cap is
// reached the oldest entry is dropped. Entries are never mutated after append.
package ringlog

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Entry is the stable persisted shape for audit tooling:
// {id, timestampMs, type, ...fields}.
type Entry struct {
	ID          string         `json:"id"`
	TimestampMs int64          `json:"timestampMs"`
	Type        string         `json:"type"`
	Fields      map[string]any `json:"fields,omitempty"`
}

// Log is a bounded rolling buffer of entries, safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	cap     int
	entries []Entry
	nowFn   func() time.Time
}

// New creates a log holding at most capacity entries (default 200 if <= 0).
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = 200
	}
	return &Log{cap: capacity, nowFn: time.Now}
}

// SetClock overrides the timestamp source. Intended for tests.
func (l *Log) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.nowFn = now
	l.mu.Unlock()
}

// Append records an event of the given type, evicting the oldest entry when
// the buffer is full. Returns the created entry.
func (l *Log) Append(eventType string, fields map[string]any) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	ms := l.nowFn().UnixMilli()
	entry := Entry{
		ID:          fmt.Sprintf("%d-%06x", ms, rand.Intn(1<<24)),
		TimestampMs: ms,
		Type:        eventType,
		Fields:      fields,
	}
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.cap {
		l.entries = l.entries[len(l.entries)-l.cap:]
	}
	return entry
}

// Entries returns a copy of the current buffer, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of buffered entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
