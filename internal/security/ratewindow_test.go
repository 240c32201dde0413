package security

import (
	"testing"
	"time"

	"github.com/MarkusAkitus/Teender/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestRateWindowTrackerInclusiveMax(t *testing.T) {
	clock := newFakeClock()
	tracker := NewRateWindowTracker(config.RateLimitPolicy{Max: 3, Window: time.Minute})
	tracker.SetClock(clock.Now)

	for i := 1; i <= 3; i++ {
		result := tracker.Record("k")
		assert.True(t, result.Allowed, "call %d", i)
		assert.Equal(t, i, result.Count)
		assert.Equal(t, 3-i, result.Remaining)
	}

	fourth := tracker.Record("k")
	assert.False(t, fourth.Allowed)
	assert.Equal(t, 4, fourth.Count)
	assert.Equal(t, 0, fourth.Remaining)
}

func TestRateWindowTrackerResetAfterWindow(t *testing.T) {
	clock := newFakeClock()
	tracker := NewRateWindowTracker(config.RateLimitPolicy{Max: 2, Window: time.Minute})
	tracker.SetClock(clock.Now)

	start := clock.Now()
	tracker.Record("k")
	first := tracker.Record("k")
	assert.True(t, first.Allowed)
	assert.Equal(t, start.Add(time.Minute), first.ResetAt)

	clock.Advance(61 * time.Second)
	reset := tracker.Record("k")
	assert.True(t, reset.Allowed)
	assert.Equal(t, 1, reset.Count)
}

func TestRateWindowTrackerPeekDoesNotCount(t *testing.T) {
	clock := newFakeClock()
	tracker := NewRateWindowTracker(config.RateLimitPolicy{Max: 3, Window: time.Minute})
	tracker.SetClock(clock.Now)

	assert.Equal(t, 0, tracker.Peek("k").Count)

	tracker.Record("k")
	tracker.Record("k")
	peeked := tracker.Peek("k")
	assert.Equal(t, 2, peeked.Count)
	assert.Equal(t, 1, peeked.Remaining)
	assert.Equal(t, 2, tracker.Peek("k").Count)

	clock.Advance(61 * time.Second)
	assert.Equal(t, 0, tracker.Peek("k").Count)
}

func TestRateWindowTrackerKeysAreIndependent(t *testing.T) {
	clock := newFakeClock()
	tracker := NewRateWindowTracker(config.RateLimitPolicy{Max: 1, Window: time.Minute})
	tracker.SetClock(clock.Now)

	assert.True(t, tracker.Record("a").Allowed)
	assert.False(t, tracker.Record("a").Allowed)
	assert.True(t, tracker.Record("b").Allowed)
}
