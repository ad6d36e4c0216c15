package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status int
		kind   ErrorKind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusNotFound, KindNotFound},
		{http.StatusConflict, KindConflict},
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusInternalServerError, KindServer},
		{http.StatusServiceUnavailable, KindServer},
		{http.StatusBadRequest, KindClient},
		{http.StatusUnprocessableEntity, KindClient},
	}
	for _, tc := range cases {
		require.Equal(t, tc.kind, ClassifyStatus(tc.status), "status %d", tc.status)
	}
}

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(&APIError{Kind: KindTransient}))
	require.True(t, IsRetryable(&APIError{Kind: KindServer, StatusCode: 503}))
	require.True(t, IsRetryable(&APIError{Kind: KindRateLimited, StatusCode: 429}))
	require.True(t, IsRetryable(context.DeadlineExceeded))

	require.False(t, IsRetryable(&APIError{Kind: KindAuth, StatusCode: 403}))
	require.False(t, IsRetryable(&APIError{Kind: KindNotFound, StatusCode: 404}))
	require.False(t, IsRetryable(&APIError{Kind: KindConflict, StatusCode: 409}))
	require.False(t, IsRetryable(&APIError{Kind: KindClient, StatusCode: 400}))
	require.False(t, IsRetryable(errors.New("unclassified")))
}

func TestIsRetryableOnWrappedError(t *testing.T) {
	wrapped := fmt.Errorf("poll failed: %w", &APIError{Kind: KindServer, StatusCode: 500})
	require.True(t, IsRetryable(wrapped))
	require.False(t, IsRateLimited(wrapped))

	limited := fmt.Errorf("submit failed: %w", &APIError{Kind: KindRateLimited, StatusCode: 429})
	require.True(t, IsRateLimited(limited))
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{Kind: KindServer, StatusCode: 503, Message: "maintenance"}
	require.Contains(t, err.Error(), "503")
	require.Contains(t, err.Error(), "maintenance")
	require.NotEmpty(t, err.UserMessage())

	transport := &APIError{Kind: KindTransient, Message: "connection refused"}
	require.Contains(t, transport.Error(), "connection refused")
}
