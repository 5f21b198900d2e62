package internal

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net"
	"net/http"
	"time"
)

// RetryConfig controls retry behavior for outbound fetches
type RetryConfig struct {
	MaxRetries  int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultRetryConfig returns backoff settings with the given retry count
func DefaultRetryConfig(retries int) RetryConfig {
	return RetryConfig{
		MaxRetries:  retries,
		InitialWait: 500 * time.Millisecond,
		MaxWait:     8 * time.Second,
		Multiplier:  2.0,
	}
}

// RetryDo retries fn with exponential backoff while it fails with a network error.
// Not-found and no-captions failures are returned immediately.
func RetryDo[T any](ctx context.Context, rc RetryConfig, logger *slog.Logger, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= rc.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, withKind(ErrNetwork, err)
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return zero, err
		}

		if attempt < rc.MaxRetries {
			wait := time.Duration(float64(rc.InitialWait) * math.Pow(rc.Multiplier, float64(attempt)))
			if wait > rc.MaxWait {
				wait = rc.MaxWait
			}
			if logger != nil {
				logger.Debug("retrying", slog.Int("attempt", attempt+1), slog.Duration("wait", wait), slog.Any("err", err))
			}
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return zero, lastErr
			}
		}
	}
	return zero, lastErr
}

// httpStatusError carries a non-2xx status
type httpStatusError struct {
	StatusCode int
	URL        string
}

func (e *httpStatusError) Error() string {
	return http.StatusText(e.StatusCode) + " from " + e.URL
}

// statusError classifies an unexpected HTTP status
func statusError(code int, url string) error {
	err := &httpStatusError{StatusCode: code, URL: url}
	switch {
	case code == http.StatusNotFound || code == http.StatusGone:
		return withKind(ErrNotFound, err)
	default:
		return withKind(ErrNetwork, err)
	}
}

// isRetryable returns true for transient errors worth retrying
func isRetryable(err error) bool {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNoCaptions) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var httpErr *httpStatusError
	if errors.As(err, &httpErr) {
		return isRetryableStatus(httpErr.StatusCode)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return errors.Is(err, ErrNetwork)
}

// isRetryableStatus returns true for HTTP status codes worth retrying
func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
