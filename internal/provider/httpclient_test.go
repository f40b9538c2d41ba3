package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdgate/internal/cache"
	"mdgate/internal/errors"
	"mdgate/internal/market"
)

// recordingLimiter counts acquisitions and their costs.
type recordingLimiter struct {
	calls atomic.Int32
	cost  atomic.Int32
	err   error
}

func (l *recordingLimiter) Acquire(ctx context.Context, vendor market.VendorID, cost int) error {
	l.calls.Add(1)
	l.cost.Add(int32(cost))
	return l.err
}

func TestGetJSONDecodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Write([]byte(`{"value": 42}`))
	}))
	defer srv.Close()

	limiter := &recordingLimiter{}
	c := NewHTTPClient("v1", srv.URL, "secret", nil, limiter, nil)

	var out struct {
		Value int `json:"value"`
	}
	require.NoError(t, c.GetJSON(context.Background(), "/thing", nil, 1, &out))
	assert.Equal(t, 42, out.Value)
	assert.Equal(t, int32(1), limiter.calls.Load())
}

func TestGetJSONAPIKeyParam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("token"))
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewHTTPClient("v1", srv.URL, "secret", nil, nil, nil)
	c.APIKeyParam = "token"

	var out struct{}
	require.NoError(t, c.GetJSON(context.Background(), "/thing", nil, 1, &out))
}

func TestGetJSONZeroCostSkipsLimiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	limiter := &recordingLimiter{}
	c := NewHTTPClient("v1", srv.URL, "", nil, limiter, nil)

	var out struct{}
	require.NoError(t, c.GetJSON(context.Background(), "/pre-reserved", nil, 0, &out))
	assert.Equal(t, int32(0), limiter.calls.Load())
}

func TestGetJSONLimiterErrorShortCircuits(t *testing.T) {
	hit := atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit.Add(1)
	}))
	defer srv.Close()

	limiter := &recordingLimiter{err: errors.RateLimited("v1", time.Second)}
	c := NewHTTPClient("v1", srv.URL, "", nil, limiter, nil)

	var out struct{}
	err := c.GetJSON(context.Background(), "/thing", nil, 1, &out)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindRateLimit))
	assert.Equal(t, int32(0), hit.Load(), "a rejected acquisition must not reach the network")
}

func TestGetJSONStatusMapping(t *testing.T) {
	tests := []struct {
		status     int
		retryAfter string
		wantKind   errors.Kind
	}{
		{http.StatusTooManyRequests, "30", errors.KindRateLimit},
		{http.StatusUnauthorized, "", errors.KindAuthentication},
		{http.StatusForbidden, "", errors.KindPermissionDenied},
		{http.StatusNotFound, "", errors.KindInvalidSymbol},
		{http.StatusServiceUnavailable, "", errors.KindServiceUnavailable},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tt.retryAfter != "" {
				w.Header().Set("Retry-After", tt.retryAfter)
			}
			w.WriteHeader(tt.status)
			w.Write([]byte(`{"error": "nope"}`))
		}))

		c := NewHTTPClient("v1", srv.URL, "", nil, nil, nil)
		var out struct{}
		err := c.GetJSON(context.Background(), "/thing", nil, 1, &out)
		require.Error(t, err, "status %d", tt.status)
		assert.True(t, errors.IsKind(err, tt.wantKind), "status %d should map to %s", tt.status, tt.wantKind)

		if tt.wantKind == errors.KindRateLimit {
			pe := errors.AsProviderError(err, "v1")
			assert.Equal(t, 30*time.Second, pe.RetryAfter)
		}
		srv.Close()
	}
}

func TestGetJSONConnectionRefused(t *testing.T) {
	c := NewHTTPClient("v1", "http://127.0.0.1:1", "", nil, nil, nil)
	var out struct{}
	err := c.GetJSON(context.Background(), "/thing", nil, 1, &out)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindUnavailable))
}

func TestCached(t *testing.T) {
	mem := cache.NewMemory(10)
	defer mem.Close()

	fetches := 0
	fetch := func(ctx context.Context) (string, error) {
		fetches++
		return "fresh", nil
	}

	v, err := Cached(context.Background(), mem, "k", time.Minute, []string{SymbolTag("AAPL")}, fetch)
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
	assert.Equal(t, 1, fetches)

	v, err = Cached(context.Background(), mem, "k", time.Minute, nil, fetch)
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
	assert.Equal(t, 1, fetches, "second lookup must be served from cache")

	mem.InvalidateTag(SymbolTag("AAPL"))
	_, err = Cached(context.Background(), mem, "k", time.Minute, nil, fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, fetches, "tag invalidation must force a refetch")
}

func TestCachedErrorsAreNotCached(t *testing.T) {
	mem := cache.NewMemory(10)
	defer mem.Close()

	calls := 0
	fetch := func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.Unavailable("v1", nil)
	}

	_, err := Cached(context.Background(), mem, "k", time.Minute, nil, fetch)
	require.Error(t, err)
	_, err = Cached(context.Background(), mem, "k", time.Minute, nil, fetch)
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, mem.Len())
}
