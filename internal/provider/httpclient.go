package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mdgate/internal/cache"
	"mdgate/internal/errors"
	"mdgate/internal/logging"
	"mdgate/internal/market"
	"mdgate/internal/ratelimit"
)

const maxErrorBodyBytes = 512

// HTTPClient is the plumbing shared by every vendor client: cache lookup,
// rate limiter admission, the HTTP round trip with its own timeout, and the
// status-to-taxonomy mapping. Vendor clients embed it and keep only the
// endpoint/shape specifics.
type HTTPClient struct {
	Vendor  market.VendorID
	BaseURL string
	APIKey  string
	// APIKeyHeader names the header carrying the key; empty means a
	// standard Bearer Authorization header. APIKeyParam instead sends the
	// key as a query parameter, the way finnhub-style APIs expect.
	APIKeyHeader string
	APIKeyParam  string

	HTTP    *http.Client
	Cache   cache.Cache
	Limiter ratelimit.Limiter
	Log     *logging.Logger
}

// NewHTTPClient creates vendor plumbing with a 10s request timeout.
func NewHTTPClient(vendor market.VendorID, baseURL, apiKey string, c cache.Cache, l ratelimit.Limiter, log *logging.Logger) *HTTPClient {
	return &HTTPClient{
		Vendor:  vendor,
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
		Cache:   c,
		Limiter: l,
		Log:     log,
	}
}

// GetJSON fetches path with query params and decodes the body into dest.
// The limiter is consulted before the network call with the given token
// cost; cost zero means the caller already reserved tokens for this call
// (batch requests reserve their whole estimated cost up front). The caller
// handles caching of the decoded result.
func (c *HTTPClient) GetJSON(ctx context.Context, path string, params url.Values, cost int, dest interface{}) error {
	if c.Limiter != nil && cost > 0 {
		if err := c.Limiter.Acquire(ctx, c.Vendor, cost); err != nil {
			return err
		}
	}

	if c.APIKey != "" && c.APIKeyParam != "" {
		if params == nil {
			params = url.Values{}
		}
		params.Set(c.APIKeyParam, c.APIKey)
	}
	u := c.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, string(c.Vendor), "build request")
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" && c.APIKeyParam == "" {
		if c.APIKeyHeader != "" {
			req.Header.Set(c.APIKeyHeader, c.APIKey)
		} else {
			req.Header.Set("Authorization", "Bearer "+c.APIKey)
		}
	}

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Unavailable(string(c.Vendor), err)
	}
	defer resp.Body.Close()

	if c.Log != nil {
		c.Log.WithFields(map[string]interface{}{
			"vendor":  c.Vendor,
			"path":    path,
			"status":  resp.StatusCode,
			"elapsed": time.Since(start).String(),
		}).Debug("upstream request")
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		perr := errors.FromStatus(string(c.Vendor), resp.StatusCode, string(body))
		if perr.Kind == errors.KindRateLimit {
			perr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		}
		return perr
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return errors.Wrap(err, errors.KindInternal, string(c.Vendor),
			fmt.Sprintf("decode %s response", path))
	}
	return nil
}

// Cached runs a cache-aside fetch: return the live entry for key, or invoke
// fetch, store its result under key for ttl with tags, and return it.
// Concurrent misses for the same key may both fetch; a duplicate read of an
// idempotent endpoint is harmless.
func Cached[T any](ctx context.Context, c cache.Cache, key string, ttl time.Duration, tags []string, fetch func(context.Context) (T, error)) (T, error) {
	if c != nil {
		if v, ok := c.Get(key); ok {
			if typed, ok := v.(T); ok {
				return typed, nil
			}
		}
	}
	v, err := fetch(ctx)
	if err != nil {
		return v, err
	}
	if c != nil {
		c.Set(key, v, ttl, tags...)
	}
	return v, nil
}

// SymbolTag is the cache tag carried by every artifact derived from one
// symbol, so a single invalidation event clears quotes, bars, and chains
// together.
func SymbolTag(symbol string) string {
	return "symbol:" + symbol
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
