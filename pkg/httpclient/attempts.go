package httpclient

import (
	"context"
	"sync/atomic"
)

type attemptsKey struct{}

// AttemptCounter counts round trips issued for requests carrying it.
type AttemptCounter struct {
	n atomic.Int64
}

// Load returns the number of attempts recorded so far.
func (c *AttemptCounter) Load() int {
	if c == nil {
		return 0
	}
	return int(c.n.Load())
}

// WithAttemptCounter returns a context whose requests are counted by the
// returned counter.
func WithAttemptCounter(ctx context.Context) (context.Context, *AttemptCounter) {
	c := &AttemptCounter{}
	return context.WithValue(ctx, attemptsKey{}, c), c
}

// recordAttempt increments the counter in ctx, if any, and returns the
// attempt number (1-based, 0 when uncounted).
func recordAttempt(ctx context.Context) int64 {
	c, ok := ctx.Value(attemptsKey{}).(*AttemptCounter)
	if !ok {
		return 0
	}
	return c.n.Add(1)
}
