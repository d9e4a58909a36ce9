package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Kind classifies an error from an external call
type Kind int

const (
	// KindThrottled means the service signaled a quota or rate ceiling.
	// Retried with backoff up to the configured budget.
	KindThrottled Kind = iota
	// KindTransient means a temporary failure (5xx, timeout, reset).
	// Retried once with a short fixed delay.
	KindTransient
	// KindFatal means retrying cannot help (bad input, bad credentials).
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindThrottled:
		return "throttled"
	case KindTransient:
		return "transient"
	default:
		return "fatal"
	}
}

// RateLimitExceededError is returned when the throttling retry budget is
// exhausted. The last underlying cause is attached.
type RateLimitExceededError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("%s: rate limit still exceeded after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *RateLimitExceededError) Unwrap() error { return e.Err }

// OperationFailedError is returned for fatal errors and for transient
// errors that failed again on the retry
type OperationFailedError struct {
	Op       string
	Kind     Kind
	Attempts int
	Err      error
}

func (e *OperationFailedError) Error() string {
	return fmt.Sprintf("%s: operation failed (%s, %d attempts): %v", e.Op, e.Kind, e.Attempts, e.Err)
}

func (e *OperationFailedError) Unwrap() error { return e.Err }

// throttle markers seen across embedding, generation and vector services
var throttleMarkers = []string{
	"rate limit",
	"rate_limit",
	"too many requests",
	"quota",
	"resource exhausted",
	"limit exceeded",
	"throttl",
	"429",
}

var transientMarkers = []string{
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"temporarily unavailable",
	"server error",
	"bad gateway",
	"service unavailable",
	"eof",
}

// Classify maps an external call error to a retry class. Context
// cancellation is fatal: the caller decided to stop, retrying is wrong.
func Classify(err error) Kind {
	if err == nil {
		return KindFatal
	}

	if errors.Is(err, context.Canceled) {
		return KindFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}

	// OpenAI-compatible services return a typed error with a status code
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return KindThrottled
		case apiErr.HTTPStatusCode >= 500:
			return KindTransient
		case apiErr.HTTPStatusCode == 400 || apiErr.HTTPStatusCode == 401 ||
			apiErr.HTTPStatusCode == 403 || apiErr.HTTPStatusCode == 404:
			return KindFatal
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransient
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range throttleMarkers {
		if strings.Contains(msg, marker) {
			return KindThrottled
		}
	}
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return KindTransient
		}
	}

	return KindFatal
}
