package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(capacity int, window time.Duration) (*Limiter, *fakeClock) {
	clock := newFakeClock()
	l := New(capacity, window)
	l.Clock = clock.Now
	return l, clock
}

func TestConsumeRejectsAfterCapacity(t *testing.T) {
	l, clock := newTestLimiter(3, 10*time.Second)

	for i := 0; i < 3; i++ {
		d := l.Consume("10.0.0.1")
		require.True(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, 2-i, d.Remaining)
		assert.Equal(t, 3, d.Limit)
	}

	clock.Advance(4 * time.Second)
	d := l.Consume("10.0.0.1")
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 6*time.Second, d.RetryAfter)
	assert.Equal(t, 6, d.ResetSeconds())
	assert.Equal(t, 6, d.RetryAfterSeconds())
	assert.LessOrEqual(t, d.RetryAfterSeconds(), 10)
}

func TestConsumeKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)

	assert.True(t, l.Consume("a").Allowed)
	assert.False(t, l.Consume("a").Allowed)
	assert.True(t, l.Consume("b").Allowed)
}

func TestConsumeResetsAfterWindow(t *testing.T) {
	l, clock := newTestLimiter(2, 10*time.Second)

	l.Consume("k")
	l.Consume("k")
	require.False(t, l.Consume("k").Allowed)

	clock.Advance(10 * time.Second)

	d := l.Consume("k")
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)

	entry, ok := l.Lookup("k")
	require.True(t, ok)
	assert.Equal(t, clock.Now().Add(10*time.Second), entry.WindowResetAt)
}

func TestConsumeConcurrentSinglePoint(t *testing.T) {
	for round := 0; round < 20; round++ {
		l := New(1, time.Minute)

		var admitted atomic.Int32
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if l.Consume("shared").Allowed {
					admitted.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		require.Equal(t, int32(1), admitted.Load())
	}
}

func TestRetryAfterSecondsRoundsUp(t *testing.T) {
	tests := []struct {
		retry time.Duration
		want  int
	}{
		{0, 1},
		{200 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{59*time.Second + time.Millisecond, 60},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Decision{RetryAfter: tt.retry}.RetryAfterSeconds(), tt.retry.String())
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	l, clock := newTestLimiter(5, 10*time.Second)

	l.Consume("old")
	clock.Advance(6 * time.Second)
	l.Consume("new")
	clock.Advance(5 * time.Second)

	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())

	_, ok := l.Lookup("old")
	assert.False(t, ok)
	_, ok = l.Lookup("new")
	assert.True(t, ok)
}

func TestNilOrUnboundedLimiterAdmits(t *testing.T) {
	var l *Limiter
	assert.True(t, l.Consume("x").Allowed)
	assert.True(t, New(0, time.Second).Consume("x").Allowed)
}
