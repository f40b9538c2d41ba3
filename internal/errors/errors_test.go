package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderErrorError(t *testing.T) {
	err := New(KindInvalidSymbol, "polygon", "unknown symbol ZZZZ")
	assert.Equal(t, "[INVALID_SYMBOL] polygon: unknown symbol ZZZZ", err.Error())

	err = Config("no vendor configured for bars")
	assert.Equal(t, "[CONFIGURATION] no vendor configured for bars", err.Error())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(cause, KindUnavailable, "finnhub", "request failed")
	require.NotNil(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindUnavailable, err.Kind)

	// Wrapping an existing ProviderError must not re-classify it.
	rl := RateLimited("finnhub", 30*time.Second)
	rewrapped := Wrap(fmt.Errorf("outer: %w", rl), KindInternal, "finnhub", "oops")
	assert.Equal(t, KindRateLimit, rewrapped.Kind)
	assert.Equal(t, 30*time.Second, rewrapped.RetryAfter)
}

func TestFallbackable(t *testing.T) {
	assert.False(t, RateLimited("v1", 0).Fallbackable())
	assert.False(t, Config("missing vendor").Fallbackable())
	assert.True(t, Unavailable("v1", nil).Fallbackable())
	assert.True(t, New(KindInvalidSymbol, "v1", "bad").Fallbackable())
	assert.True(t, New(KindAuthentication, "v1", "bad key").Fallbackable())
}

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusTooManyRequests, KindRateLimit},
		{http.StatusUnauthorized, KindAuthentication},
		{http.StatusForbidden, KindPermissionDenied},
		{http.StatusNotFound, KindInvalidSymbol},
		{http.StatusBadRequest, KindValidation},
		{http.StatusUnprocessableEntity, KindValidation},
		{http.StatusInternalServerError, KindServiceUnavailable},
		{http.StatusBadGateway, KindServiceUnavailable},
		{http.StatusTeapot, KindInternal},
	}
	for _, tt := range tests {
		got := FromStatus("tradier", tt.status, "body")
		assert.Equal(t, tt.want, got.Kind, "status %d", tt.status)
		assert.Equal(t, tt.status, got.StatusCode)
	}
}

func TestHTTPStatusRoundTrip(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests, RateLimited("v", 0).HTTPStatus())
	assert.Equal(t, http.StatusNotFound, New(KindInvalidSymbol, "v", "").HTTPStatus())
	assert.Equal(t, http.StatusServiceUnavailable, Unavailable("v", nil).HTTPStatus())
	assert.Equal(t, http.StatusNotImplemented, Config("x").HTTPStatus())
}

func TestIsKindThroughWrapping(t *testing.T) {
	inner := RateLimited("polygon", time.Minute)
	outer := fmt.Errorf("fetch quotes: %w", inner)

	assert.True(t, IsKind(outer, KindRateLimit))
	assert.False(t, IsKind(outer, KindUnavailable))
	assert.Equal(t, KindRateLimit, GetKind(outer))
	assert.Equal(t, KindInternal, GetKind(stderrors.New("plain")))
}

func TestAsProviderError(t *testing.T) {
	pe := AsProviderError(stderrors.New("dial tcp: timeout"), "polygon")
	require.NotNil(t, pe)
	assert.Equal(t, KindInternal, pe.Kind)
	assert.Equal(t, "polygon", pe.Vendor)

	orig := New(KindValidation, "tradier", "bad expiration")
	assert.Same(t, orig, AsProviderError(orig, "ignored"))
	assert.Nil(t, AsProviderError(nil, "v"))
}
