package security

import (
	"sync"
	"time"

	"github.com/MarkusAkitus/Teender/internal/config"
)

// WindowResult is the outcome of recording one event against a sliding window.
type WindowResult struct {
	Count     int
	Allowed   bool
	Remaining int
	ResetAt   time.Time // when the bucket next has room
}

// slideWindow drops timestamps older than the window, appends now, and
// compares the surviving count to max. The call that reaches exactly max is
// itself allowed; the max+1-th is denied. Pure given the injected now.
func slideWindow(timestamps []time.Time, now time.Time, window time.Duration, max int) ([]time.Time, WindowResult) {
	cutoff := now.Add(-window)
	kept := timestamps[:0]
	for _, t := range timestamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)

	remaining := max - len(kept)
	if remaining < 0 {
		remaining = 0
	}
	resetAt := now
	if len(kept) > 0 {
		resetAt = kept[0].Add(window)
	}
	return kept, WindowResult{
		Count:     len(kept),
		Allowed:   len(kept) <= max,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// RateWindowTracker is a standalone sliding-window counter keyed by subject,
// for callers that need windowed counting outside the guard's IP records.
type RateWindowTracker struct {
	mu      sync.Mutex
	policy  config.RateLimitPolicy
	buckets map[string][]time.Time
	nowFn   func() time.Time
}

// NewRateWindowTracker creates a tracker with the given per-key policy.
func NewRateWindowTracker(policy config.RateLimitPolicy) *RateWindowTracker {
	return &RateWindowTracker{
		policy:  policy,
		buckets: make(map[string][]time.Time),
		nowFn:   time.Now,
	}
}

// SetClock overrides the timestamp source. Intended for tests.
func (t *RateWindowTracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.nowFn = now
	t.mu.Unlock()
}

// Record counts one event for key and reports whether it is within policy.
func (t *RateWindowTracker) Record(key string) WindowResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept, result := slideWindow(t.buckets[key], t.nowFn(), t.policy.Window, t.policy.Max)
	t.buckets[key] = kept
	return result
}

// Peek reports the current window state for key without counting an event.
func (t *RateWindowTracker) Peek(key string) WindowResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.nowFn()
	cutoff := now.Add(-t.policy.Window)
	kept := t.buckets[key][:0]
	for _, ts := range t.buckets[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	t.buckets[key] = kept

	remaining := t.policy.Max - len(kept)
	if remaining < 0 {
		remaining = 0
	}
	resetAt := now
	if len(kept) > 0 {
		resetAt = kept[0].Add(t.policy.Window)
	}
	return WindowResult{
		Count:     len(kept),
		Allowed:   len(kept) <= t.policy.Max,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
