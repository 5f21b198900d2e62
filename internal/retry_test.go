package internal

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(retries int) RetryConfig {
	return RetryConfig{MaxRetries: retries, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond, Multiplier: 2}
}

func TestRetryDoRetriesNetworkErrors(t *testing.T) {
	attempts := 0
	got, err := RetryDo(context.Background(), fastRetry(3), nil, func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", statusError(http.StatusServiceUnavailable, "https://example.com")
		}
		return "done", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Equal(t, 3, attempts)
}

func TestRetryDoGivesUp(t *testing.T) {
	attempts := 0
	_, err := RetryDo(context.Background(), fastRetry(2), nil, func() (int, error) {
		attempts++
		return 0, withKind(ErrNetwork, errors.New("connection reset"))
	})

	assert.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, 3, attempts)
}

func TestRetryDoStopsOnPermanentErrors(t *testing.T) {
	for name, permanent := range map[string]error{
		"not found":   statusError(http.StatusNotFound, "https://example.com"),
		"no captions": noCaptionsf("nothing"),
		"forbidden":   statusError(http.StatusForbidden, "https://example.com"),
	} {
		t.Run(name, func(t *testing.T) {
			attempts := 0
			_, err := RetryDo(context.Background(), fastRetry(3), nil, func() (int, error) {
				attempts++
				return 0, permanent
			})
			assert.Error(t, err)
			assert.Equal(t, 1, attempts)
		})
	}
}

func TestRetryDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	_, err := RetryDo(ctx, fastRetry(3), nil, func() (int, error) {
		attempts++
		return 0, nil
	})
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Zero(t, attempts)
}

func TestStatusErrorKinds(t *testing.T) {
	assert.ErrorIs(t, statusError(http.StatusNotFound, "u"), ErrNotFound)
	assert.ErrorIs(t, statusError(http.StatusGone, "u"), ErrNotFound)
	assert.ErrorIs(t, statusError(http.StatusTooManyRequests, "u"), ErrNetwork)
	assert.True(t, isRetryable(statusError(http.StatusTooManyRequests, "u")))
	assert.False(t, isRetryable(statusError(http.StatusBadRequest, "u")))
}
