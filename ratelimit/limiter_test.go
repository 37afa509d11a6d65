package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives the limiter without real sleeps.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(interval time.Duration) (*Limiter, *fakeClock) {
	clock := newFakeClock()
	l := New(interval)
	l.now = clock.Now
	l.sleep = clock.Sleep
	return l, clock
}

func TestLimiter_FirstCallDoesNotWait(t *testing.T) {
	l, clock := newTestLimiter(time.Second)

	require.NoError(t, l.Wait(context.Background()))
	assert.Empty(t, clock.slept)
}

func TestLimiter_EnforcesMinInterval(t *testing.T) {
	l, clock := newTestLimiter(time.Second)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx))
	require.NoError(t, l.Wait(ctx))

	require.Len(t, clock.slept, 1)
	assert.Equal(t, time.Second, clock.slept[0])
}

func TestLimiter_NoWaitWhenIntervalElapsed(t *testing.T) {
	l, clock := newTestLimiter(time.Second)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx))
	clock.Advance(2 * time.Second)
	require.NoError(t, l.Wait(ctx))

	assert.Empty(t, clock.slept)
}

func TestLimiter_RecordErrorAddsPenalty(t *testing.T) {
	l, clock := newTestLimiter(time.Second)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx))
	l.RecordError()
	require.NoError(t, l.Wait(ctx))

	require.Len(t, clock.slept, 1)
	// Base interval plus one 0.5s penalty.
	assert.Equal(t, 1500*time.Millisecond, clock.slept[0])
	assert.Greater(t, clock.slept[0], time.Second)
}

func TestLimiter_PenaltyCapsAtFiveSeconds(t *testing.T) {
	l, clock := newTestLimiter(time.Second)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx))
	for i := 0; i < 20; i++ {
		l.RecordError()
	}
	require.NoError(t, l.Wait(ctx))

	require.Len(t, clock.slept, 1)
	assert.Equal(t, 6*time.Second, clock.slept[0])
	assert.Equal(t, 20, l.ErrorCount())
}

func TestLimiter_PenaltyExpiresAfterWindow(t *testing.T) {
	l, clock := newTestLimiter(time.Second)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx))
	l.RecordError()
	clock.Advance(61 * time.Second)
	require.NoError(t, l.Wait(ctx))

	// Outside the 60s window the error no longer stretches the wait,
	// and more than the base interval has already elapsed.
	assert.Empty(t, clock.slept)
}

func TestLimiter_WaitHonorsContextCancellation(t *testing.T) {
	l := New(time.Hour)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err := l.Wait(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLimiter_SequentialCallsAreSpaced(t *testing.T) {
	// Real-clock check that two back-to-back waits are separated by
	// at least the configured interval.
	l := New(50 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx))
	start := time.Now()
	require.NoError(t, l.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiter_ConcurrentWaitersSerialize(t *testing.T) {
	l := New(20 * time.Millisecond)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var returns []time.Time
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Wait(ctx))
			mu.Lock()
			returns = append(returns, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, returns, 4)
	// Every pair of returns must be spaced by at least the interval,
	// minus a small scheduling tolerance.
	for i := range returns {
		for j := i + 1; j < len(returns); j++ {
			gap := returns[j].Sub(returns[i])
			if gap < 0 {
				gap = -gap
			}
			assert.GreaterOrEqual(t, gap, 15*time.Millisecond)
		}
	}
}
