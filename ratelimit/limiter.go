// Package ratelimit provides the shared throttle gate that spaces out
// calls to the upstream LLM provider. A single Limiter is shared by all
// agent executors in a process; when the provider signals rate-limit
// rejections, RecordError biases future waits with an adaptive penalty.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultInterval is the minimum spacing between upstream calls
	// when no interval is configured.
	DefaultInterval = time.Second

	// errorWindow is how long a recorded rate-limit error keeps
	// influencing the computed wait.
	errorWindow = 60 * time.Second

	// perErrorPenalty is the extra delay added per recorded error.
	perErrorPenalty = 500 * time.Millisecond

	// maxPenalty caps the adaptive penalty.
	maxPenalty = 5 * time.Second
)

// Limiter enforces a minimum wall-clock interval between successive
// calls to the upstream provider. All state lives in one critical
// section: each waiter computes its delay from the current state,
// sleeps while holding the lock, and stamps lastCall before releasing,
// so back-to-back concurrent callers still observe correct spacing.
type Limiter struct {
	mu          sync.Mutex
	minInterval time.Duration
	lastCall    time.Time

	// TODO: errorCount is never reset or decayed, so once 10 errors
	// have been recorded the penalty stays saturated at maxPenalty
	// for every window that contains a recent error. Needs a decay
	// policy once the desired behavior is clarified.
	errorCount int
	lastError  time.Time

	logger *zap.Logger

	// Overridable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets a custom logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger.With(zap.String("component", "rate_limiter"))
	}
}

// New creates a Limiter with the given minimum interval between calls.
// A non-positive interval falls back to DefaultInterval.
func New(minInterval time.Duration, opts ...Option) *Limiter {
	if minInterval <= 0 {
		minInterval = DefaultInterval
	}
	l := &Limiter{
		minInterval: minInterval,
		logger:      zap.NewNop(),
		now:         time.Now,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// MinInterval returns the configured base interval.
func (l *Limiter) MinInterval() time.Duration {
	return l.minInterval
}

// Wait blocks until at least the required interval has elapsed since
// the previous return from Wait. The required interval is the base
// interval plus an adaptive penalty when a rate-limit error was
// recorded within the last minute. Returns the context error if the
// context is cancelled while waiting.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	var extra time.Duration
	if !l.lastError.IsZero() && now.Sub(l.lastError) < errorWindow {
		extra = time.Duration(l.errorCount) * perErrorPenalty
		if extra > maxPenalty {
			extra = maxPenalty
		}
	}

	if !l.lastCall.IsZero() {
		elapsed := now.Sub(l.lastCall)
		required := l.minInterval + extra
		if wait := required - elapsed; wait > 0 {
			if wait > 100*time.Millisecond {
				l.logger.Info("rate limit wait",
					zap.Duration("wait", wait),
					zap.Duration("base_interval", l.minInterval),
					zap.Duration("extra_delay", extra),
				)
			}
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	l.lastCall = l.now()
	return nil
}

// RecordError records an upstream rate-limit rejection. Subsequent
// waits within the next minute are stretched by
// min(errorCount*0.5s, 5s).
func (l *Limiter) RecordError() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.errorCount++
	l.lastError = l.now()

	l.logger.Warn("rate limit error recorded",
		zap.Int("error_count", l.errorCount),
	)
}

// ErrorCount returns the number of recorded rate-limit errors.
func (l *Limiter) ErrorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errorCount
}

// sleepContext sleeps for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
