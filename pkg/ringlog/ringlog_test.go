package ringlog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndEntries(t *testing.T) {
	l := New(10)
	entry := l.Append("ip_track", map[string]any{"ip": "1.2.3.4"})

	assert.NotEmpty(t, entry.ID)
	assert.NotZero(t, entry.TimestampMs)
	assert.Equal(t, "ip_track", entry.Type)

	entries := l.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, entry.ID, entries[0].ID)
}

func TestCapEvictsOldest(t *testing.T) {
	l := New(5)
	for i := 0; i < 8; i++ {
		l.Append(fmt.Sprintf("event_%d", i), nil)
	}

	entries := l.Entries()
	require.Len(t, entries, 5)
	assert.Equal(t, "event_3", entries[0].Type)
	assert.Equal(t, "event_7", entries[4].Type)
}

func TestDefaultCapacity(t *testing.T) {
	l := New(0)
	for i := 0; i < 250; i++ {
		l.Append("tick", nil)
	}
	assert.Equal(t, 200, l.Len())
}

func TestEntriesReturnsCopy(t *testing.T) {
	l := New(3)
	l.Append("a", nil)
	first := l.Entries()
	first[0].Type = "mutated"
	assert.Equal(t, "a", l.Entries()[0].Type)
}
