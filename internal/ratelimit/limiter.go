// Package ratelimit implements the per-client admission limiter: a fixed
// window of points per key, held in memory.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Entry is the limiter state for one client key.
type Entry struct {
	Key           string
	Remaining     int
	WindowResetAt time.Time
}

// Decision is the outcome of one Consume call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time

	// ResetIn is the time left in the current window.
	ResetIn time.Duration

	// RetryAfter equals ResetIn for rejected requests and is zero when Allowed.
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, never below 1.
func (d Decision) RetryAfterSeconds() int {
	return ceilSeconds(d.RetryAfter)
}

// ResetSeconds rounds ResetIn up to whole seconds, never below 1.
func (d Decision) ResetSeconds() int {
	return ceilSeconds(d.ResetIn)
}

func ceilSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Limiter admits at most Capacity requests per key per Window.
type Limiter struct {
	Capacity int
	Window   time.Duration
	Clock    func() time.Time

	mu      sync.Mutex
	entries map[string]*Entry
}

// New returns a limiter with the given capacity and window.
func New(capacity int, window time.Duration) *Limiter {
	return &Limiter{
		Capacity: capacity,
		Window:   window,
		entries:  make(map[string]*Entry),
	}
}

// Consume attempts to take one point for key. The check and the decrement
// happen under one lock, so concurrent callers can never both take the last
// point.
func (l *Limiter) Consume(key string) Decision {
	if l == nil || l.Capacity <= 0 {
		return Decision{Allowed: true}
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.entries == nil {
		l.entries = make(map[string]*Entry)
	}

	entry, ok := l.entries[key]
	if !ok || !now.Before(entry.WindowResetAt) {
		entry = &Entry{
			Key:           key,
			Remaining:     l.Capacity,
			WindowResetAt: now.Add(l.Window),
		}
		l.entries[key] = entry
	}

	if entry.Remaining > 0 {
		entry.Remaining--
		return Decision{
			Allowed:   true,
			Limit:     l.Capacity,
			Remaining: entry.Remaining,
			ResetAt:   entry.WindowResetAt,
			ResetIn:   entry.WindowResetAt.Sub(now),
		}
	}

	resetIn := entry.WindowResetAt.Sub(now)
	return Decision{
		Allowed:    false,
		Limit:      l.Capacity,
		Remaining:  0,
		ResetAt:    entry.WindowResetAt,
		ResetIn:    resetIn,
		RetryAfter: resetIn,
	}
}

// Lookup returns a copy of the entry for key.
func (l *Limiter) Lookup(key string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// Len reports the number of tracked keys, expired or not.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Sweep drops entries whose window has elapsed and returns how many were
// removed. An expired entry would be reset on its next Consume anyway.
func (l *Limiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, entry := range l.entries {
		if !now.Before(entry.WindowResetAt) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

func (l *Limiter) now() time.Time {
	if l.Clock != nil {
		return l.Clock()
	}
	return time.Now()
}
