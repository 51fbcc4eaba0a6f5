package providers

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net"
	"strconv"
	"time"
)

// RetryConfig controls bounded exponential backoff for transport errors.
type RetryConfig struct {
	MaxAttempts int           // total attempts including the first (default 4)
	BaseDelay   time.Duration // initial backoff (default 1s)
	MaxDelay    time.Duration // backoff ceiling (default 30s)
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// RetryDo runs fn with bounded exponential backoff plus jitter.
// Only transport-level failures are retried: network errors, HTTP 429 and 5xx.
// Context-length rejections and other 4xx responses surface immediately.
func RetryDo[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}

	delay := cfg.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == cfg.MaxAttempts {
			return zero, err
		}

		wait := delay
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
			wait = httpErr.RetryAfter
		}
		// Jitter: 50%-100% of the computed delay.
		wait = wait/2 + time.Duration(rand.Int63n(int64(wait/2)+1))

		slog.Warn("provider call failed, retrying",
			"attempt", attempt, "max", cfg.MaxAttempts, "wait", wait, "error", err)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}

		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return zero, lastErr
}

func isRetryable(err error) bool {
	if errors.Is(err, ErrContextLengthExceeded) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// Unwrapped transport failures (connection reset, EOF mid-handshake).
	return errors.Is(err, context.DeadlineExceeded) == false && isTransportError(err)
}

func isTransportError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// ParseRetryAfter converts a Retry-After header value (seconds) to a duration.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
