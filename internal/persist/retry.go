package persist

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/rendis/caseflow/pkg/schema"
)

// RetryPolicy bounds the write attempts against storage and search. Delay is
// fixed between attempts; workloads here are small enough that backoff curves
// buy nothing over a bounded fixed wait.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryPolicy matches the historical behavior: three tries, one
// second apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: time.Second}
}

// Do runs fn up to p.Attempts times, waiting p.Delay between failures.
// Non-retryable errors stop the loop immediately. Exhaustion wraps the last
// error so callers can distinguish "gave up" from "rejected".
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var last error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := waitDelay(ctx, p.Delay); err != nil {
				return err
			}
		}
		last = fn(ctx)
		if last == nil {
			return nil
		}
		if !IsRetryableError(last) {
			return last
		}
	}
	return schema.NewErrorf(schema.ErrCodeRetryExhausted,
		"%s failed after %d attempts", op, attempts).WithCause(last)
}

func waitDelay(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRetryableError classifies whether an error should be retried.
// Retryable by default: network errors, timeouts, context.DeadlineExceeded.
// Non-retryable: validation errors, permanent rejections, typed FlowErrors
// with non-retryable codes.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Context cancelled means the service is shutting down.
	if errors.Is(err, context.Canceled) {
		return false
	}

	// FlowError checks its own code.
	var flowErr *schema.FlowError
	if errors.As(err, &flowErr) {
		return flowErr.IsRetryable()
	}

	// Network errors are retryable.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// String heuristics for common retryable patterns.
	msg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"eof",
		"temporary failure",
		"i/o timeout",
		"service unavailable",
		"bad gateway",
		"gateway timeout",
		"internal server error",
		"too many requests",
	}
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	// Default: retryable (the policy bounds the attempts).
	return true
}
