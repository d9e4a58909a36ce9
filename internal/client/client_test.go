package client

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mfukata/kensho/internal/model"
)

// fakeSleep records requested delays instead of sleeping
type fakeSleep struct {
	delays []time.Duration
}

func (f *fakeSleep) sleep(_ context.Context, d time.Duration) error {
	f.delays = append(f.delays, d)
	return nil
}

func withFakeSleep(t *testing.T) *fakeSleep {
	t.Helper()
	f := &fakeSleep{}
	orig := sleepFunc
	sleepFunc = f.sleep
	t.Cleanup(func() { sleepFunc = orig })
	return f
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{errors.New("429 Too Many Requests"), KindThrottled},
		{errors.New("quota exceeded for model"), KindThrottled},
		{errors.New("request rate limit reached"), KindThrottled},
		{errors.New("dial tcp: connection refused"), KindTransient},
		{errors.New("unexpected EOF"), KindTransient},
		{errors.New("invalid api key"), KindFatal},
		{context.DeadlineExceeded, KindTransient},
		{context.Canceled, KindFatal},
		{&openai.APIError{HTTPStatusCode: 429}, KindThrottled},
		{&openai.APIError{HTTPStatusCode: 503}, KindTransient},
		{&openai.APIError{HTTPStatusCode: 401}, KindFatal},
	}

	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestNextDelay(t *testing.T) {
	base := 5 * time.Second

	if d := NextDelay(0, base, true); d != 5*time.Second {
		t.Errorf("attempt 0 exponential: got %v, want 5s", d)
	}
	if d := NextDelay(1, base, true); d != 10*time.Second {
		t.Errorf("attempt 1 exponential: got %v, want 10s", d)
	}
	if d := NextDelay(2, base, true); d != 20*time.Second {
		t.Errorf("attempt 2 exponential: got %v, want 20s", d)
	}
	if d := NextDelay(3, base, false); d != 5*time.Second {
		t.Errorf("fixed mode: got %v, want 5s", d)
	}
	if d := NextDelay(0, 0, true); d != time.Second {
		t.Errorf("zero base: got %v, want 1s default", d)
	}
}

func TestDo_ThrottledThenSuccess(t *testing.T) {
	sleeps := withFakeSleep(t)

	c := New("embed", model.RateLimitConfig{Delay: 5 * time.Second, MaxRetries: 3, Exponential: true})
	// use an unpaced limiter in tests, the fake sleep covers backoff
	c.limiter.SetLimit(1e9)

	calls := 0
	err := c.Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("429 too many requests")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", calls)
	}
	if len(sleeps.delays) != 1 {
		t.Fatalf("expected 1 backoff sleep, got %d", len(sleeps.delays))
	}
	if sleeps.delays[0] < 5*time.Second {
		t.Errorf("backoff %v below base delay 5s", sleeps.delays[0])
	}

	stats := c.Stats()
	if stats.Calls != 2 || stats.Retries != 1 || stats.Failures != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestDo_ExponentialDoubling(t *testing.T) {
	sleeps := withFakeSleep(t)

	c := New("embed", model.RateLimitConfig{Delay: 5 * time.Second, MaxRetries: 2, Exponential: true})
	c.limiter.SetLimit(1e9)

	err := c.Do(context.Background(), func(context.Context) error {
		return errors.New("rate limit exceeded")
	})

	var rle *RateLimitExceededError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitExceededError, got %v", err)
	}
	if rle.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", rle.Attempts)
	}
	// attempt 0 -> 5s, attempt 1 -> 10s
	if len(sleeps.delays) != 2 {
		t.Fatalf("expected 2 backoff sleeps, got %d", len(sleeps.delays))
	}
	if sleeps.delays[0] != 5*time.Second || sleeps.delays[1] != 10*time.Second {
		t.Errorf("expected 5s then 10s, got %v", sleeps.delays)
	}
}

func TestDo_TransientRetriesOnce(t *testing.T) {
	withFakeSleep(t)

	c := New("upsert", model.RateLimitConfig{Delay: time.Second, MaxRetries: 5, Exponential: true})
	c.limiter.SetLimit(1e9)

	calls := 0
	err := c.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("connection reset by peer")
	})

	var ofe *OperationFailedError
	if !errors.As(err, &ofe) {
		t.Fatalf("expected OperationFailedError, got %v", err)
	}
	if ofe.Kind != KindTransient {
		t.Errorf("expected transient kind, got %v", ofe.Kind)
	}
	if calls != 2 {
		t.Errorf("transient errors retry exactly once, got %d attempts", calls)
	}
}

func TestDo_FatalNoRetry(t *testing.T) {
	withFakeSleep(t)

	c := New("generate", model.RateLimitConfig{Delay: time.Second, MaxRetries: 5, Exponential: true})
	c.limiter.SetLimit(1e9)

	calls := 0
	err := c.Do(context.Background(), func(context.Context) error {
		calls++
		return fmt.Errorf("auth check: %w", &openai.APIError{HTTPStatusCode: 401})
	})

	var ofe *OperationFailedError
	if !errors.As(err, &ofe) {
		t.Fatalf("expected OperationFailedError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("fatal errors must not retry, got %d attempts", calls)
	}
	if ofe.Kind != KindFatal {
		t.Errorf("expected fatal kind, got %v", ofe.Kind)
	}
}

func TestDo_LastCauseAttached(t *testing.T) {
	withFakeSleep(t)

	c := New("embed", model.RateLimitConfig{Delay: time.Second, MaxRetries: 1, Exponential: false})
	c.limiter.SetLimit(1e9)

	cause := errors.New("quota exhausted for project")
	err := c.Do(context.Background(), func(context.Context) error { return cause })

	if !errors.Is(err, cause) {
		t.Errorf("expected wrapped cause to survive, got %v", err)
	}
}
