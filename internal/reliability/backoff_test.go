package reliability

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderStatusClassification(t *testing.T) {
	transient := []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout}
	for _, code := range transient {
		assert.Truef(t, IsRetryableHTTPStatus(code), "status %d should be retryable", code)
	}
	permanent := []int{http.StatusOK, http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusRequestEntityTooLarge}
	for _, code := range permanent {
		assert.Falsef(t, IsRetryableHTTPStatus(code), "status %d should not be retryable", code)
	}
}

func TestPollerReconnectDelays(t *testing.T) {
	base, limit := time.Second, 30*time.Second
	var got []time.Duration
	for attempt := 0; attempt <= 6; attempt++ {
		got = append(got, ExponentialBackoff(attempt, base, limit))
	}
	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	assert.Equal(t, want, got)
	assert.Equal(t, base, ExponentialBackoff(-3, base, limit))
}

func TestSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- Sleep(ctx, time.Hour) }()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Sleep ignored a canceled context")
	}

	require.NoError(t, Sleep(context.Background(), time.Millisecond))
	require.ErrorIs(t, Sleep(ctx, 0), context.Canceled)
}
