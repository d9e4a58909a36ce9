// Package client wraps every external call (embedding, generation, vector
// upsert, semantic search) with per-operation-class rate limiting, retry
// and backoff. It carries no domain knowledge.
package client

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/mfukata/kensho/internal/model"
)

// transientRetryDelay is the short fixed pause before the single retry of
// a transient failure
const transientRetryDelay = 2 * time.Second

// sleepFunc waits for d or until the context is cancelled (injectable for tests)
var sleepFunc = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Stats is a snapshot of per-operation-class call counters
type Stats struct {
	Op       string
	Calls    int64
	Retries  int64
	Failures int64
}

// Client executes one class of external operation under a shared rate
// ceiling. External services impose global limits, so concurrency is
// constrained here rather than by unbounded fan-out.
type Client struct {
	op          string
	limiter     *rate.Limiter
	baseDelay   time.Duration
	maxRetries  int
	exponential bool

	calls    atomic.Int64
	retries  atomic.Int64
	failures atomic.Int64
}

// New creates a client for one operation class. A zero delay disables
// inter-call pacing; retries and backoff still apply.
func New(op string, cfg model.RateLimitConfig) *Client {
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Client{
		op:          op,
		limiter:     rate.NewLimiter(limit, 1),
		baseDelay:   cfg.Delay,
		maxRetries:  maxRetries,
		exponential: cfg.Exponential,
	}
}

// NextDelay computes the backoff before retry number attempt (0-based).
// Exponential mode doubles the base delay each attempt; fixed mode always
// waits the base delay.
func NextDelay(attempt int, base time.Duration, exponential bool) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if !exponential {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Do runs fn under the class's rate limit, retrying per the error class:
// throttling errors back off and retry up to the budget, transient errors
// retry once after a short pause, fatal errors abort immediately.
func (c *Client) Do(ctx context.Context, fn func(context.Context) error) error {
	transientRetried := false

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		c.calls.Add(1)
		err := fn(ctx)
		if err == nil {
			return nil
		}

		switch Classify(err) {
		case KindFatal:
			c.failures.Add(1)
			return &OperationFailedError{Op: c.op, Kind: KindFatal, Attempts: attempt + 1, Err: err}

		case KindTransient:
			if transientRetried {
				c.failures.Add(1)
				return &OperationFailedError{Op: c.op, Kind: KindTransient, Attempts: attempt + 1, Err: err}
			}
			transientRetried = true
			c.retries.Add(1)
			slog.Debug("retrying transient failure", "op", c.op, "error", err)
			if serr := sleepFunc(ctx, transientRetryDelay); serr != nil {
				return serr
			}

		case KindThrottled:
			if attempt >= c.maxRetries {
				c.failures.Add(1)
				return &RateLimitExceededError{Op: c.op, Attempts: attempt + 1, Err: err}
			}
			c.retries.Add(1)
			delay := NextDelay(attempt, c.baseDelay, c.exponential)
			slog.Warn("throttled, backing off", "op", c.op, "attempt", attempt+1, "delay", delay)
			if serr := sleepFunc(ctx, delay); serr != nil {
				return serr
			}
		}
	}
}

// Stats returns a snapshot of the call counters
func (c *Client) Stats() Stats {
	return Stats{
		Op:       c.op,
		Calls:    c.calls.Load(),
		Retries:  c.retries.Load(),
		Failures: c.failures.Load(),
	}
}
