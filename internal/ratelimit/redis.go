package ratelimit

import (
	"context"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"mdgate/internal/errors"
	"mdgate/internal/market"
)

// timeNow is swapped in tests to freeze refill.
var timeNow = time.Now

const (
	// Randomized poll window for Wait. Polling at a fixed interval would
	// stampede every waiting instance the moment a shared bucket refills.
	defaultPollMin = 700 * time.Millisecond
	defaultPollMax = 1300 * time.Millisecond

	bucketKeyPrefix = "ratelimit:bucket:"
)

// takeScript refills the bucket by elapsed wall time, clamps to capacity,
// then decrements only if enough tokens remain. Running it as one EVAL makes
// the take atomic across process instances that share the Redis.
var takeScript = redis.NewScript(`
local tokens = tonumber(redis.call('HGET', KEYS[1], 'tokens'))
local last = tonumber(redis.call('HGET', KEYS[1], 'last_refill_ms'))
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
if tokens == nil or last == nil then
  tokens = capacity
  last = now
end
local elapsed = (now - last) / 1000.0
if elapsed > 0 then
  tokens = math.min(capacity, tokens + elapsed * refill)
  last = now
end
local allowed = 0
if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
end
redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'last_refill_ms', tostring(last))
return {allowed, tostring(tokens)}
`)

// TokenStatus describes the observable state of one vendor's shared bucket.
type TokenStatus struct {
	Available        float64 `json:"available_tokens"`
	Capacity         int     `json:"capacity"`
	RefillPerSecond  float64 `json:"refill_rate"`
	SecondsUntilFull float64 `json:"seconds_until_full"`
}

// RedisBucket is the cross-instance token bucket. Bucket state lives in a
// Redis hash per vendor so that independently scheduled process instances
// collectively respect one global vendor limit.
type RedisBucket struct {
	client  redis.UniversalClient
	limits  map[market.VendorID]VendorLimit
	pollMin time.Duration
	pollMax time.Duration
}

// RedisBucketOption customizes a RedisBucket.
type RedisBucketOption func(*RedisBucket)

// WithPollInterval overrides the randomized poll window used by Wait.
func WithPollInterval(min, max time.Duration) RedisBucketOption {
	return func(b *RedisBucket) {
		b.pollMin = min
		b.pollMax = max
	}
}

// NewRedisBucket creates a distributed limiter on client with per-vendor
// limits. Bucket state is created lazily on first take.
func NewRedisBucket(client redis.UniversalClient, limits map[market.VendorID]VendorLimit, opts ...RedisBucketOption) *RedisBucket {
	b := &RedisBucket{
		client:  client,
		limits:  limits,
		pollMin: defaultPollMin,
		pollMax: defaultPollMax,
	}
	if b.limits == nil {
		b.limits = make(map[market.VendorID]VendorLimit)
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *RedisBucket) limit(vendor market.VendorID) VendorLimit {
	if l, ok := b.limits[vendor]; ok {
		return l
	}
	return DefaultVendorLimit
}

func bucketKey(vendor market.VendorID) string {
	return bucketKeyPrefix + string(vendor)
}

// Take attempts to atomically consume cost tokens from vendor's shared
// bucket. It never blocks; false means the bucket had too few tokens. A
// cost above the bucket capacity is clamped to a full bucket, otherwise
// large batch reservations could never succeed at any wait length.
func (b *RedisBucket) Take(ctx context.Context, vendor market.VendorID, cost int) (bool, error) {
	if cost <= 0 {
		cost = 1
	}
	l := b.limit(vendor)
	if capacity := effectiveCapacity(l); cost > capacity {
		cost = capacity
	}
	res, err := takeScript.Run(ctx, b.client, []string{bucketKey(vendor)},
		l.Capacity,
		l.RefillPerSecond,
		cost,
		timeNow().UnixMilli(),
	).Slice()
	if err != nil {
		return false, errors.Wrap(err, errors.KindUnavailable, string(vendor), "rate limit store unreachable")
	}
	if len(res) < 1 {
		return false, errors.Newf(errors.KindInternal, string(vendor), "malformed take reply: %v", res)
	}
	allowed, ok := res[0].(int64)
	if !ok {
		return false, errors.Newf(errors.KindInternal, string(vendor), "malformed take reply: %v", res)
	}
	return allowed == 1, nil
}

// Wait polls Take until cost tokens are acquired or maxWait elapses. Each
// failed attempt sleeps a randomized interval so concurrent instances do
// not re-poll in lockstep after a refill. At least one attempt is always
// made, even with maxWait of zero.
func (b *RedisBucket) Wait(ctx context.Context, vendor market.VendorID, cost int, maxWait time.Duration) error {
	deadline := timeNow().Add(maxWait)
	for {
		ok, err := b.Take(ctx, vendor, cost)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !timeNow().Before(deadline) {
			return errors.RateLimited(string(vendor), b.retryHint(vendor, cost))
		}

		sleep := b.pollMin
		if b.pollMax > b.pollMin {
			sleep += time.Duration(rand.Int63n(int64(b.pollMax - b.pollMin)))
		}
		if remaining := deadline.Sub(timeNow()); sleep > remaining {
			sleep = remaining
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// retryHint estimates how long until cost tokens will exist, for the
// RetryAfter field. Zero when the bucket never refills.
func (b *RedisBucket) retryHint(vendor market.VendorID, cost int) time.Duration {
	l := b.limit(vendor)
	if l.RefillPerSecond <= 0 {
		return 0
	}
	return time.Duration(float64(cost) / l.RefillPerSecond * float64(time.Second))
}

// Status reports the current shared bucket state for vendor without
// consuming tokens.
func (b *RedisBucket) Status(ctx context.Context, vendor market.VendorID) (*TokenStatus, error) {
	l := b.limit(vendor)
	status := &TokenStatus{
		Available:       float64(l.Capacity),
		Capacity:        l.Capacity,
		RefillPerSecond: l.RefillPerSecond,
	}

	vals, err := b.client.HMGet(ctx, bucketKey(vendor), "tokens", "last_refill_ms").Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindUnavailable, string(vendor), "rate limit store unreachable")
	}
	tokens, ok1 := parseFloat(vals[0])
	last, ok2 := parseFloat(vals[1])
	if ok1 && ok2 {
		elapsed := float64(timeNow().UnixMilli())/1000.0 - last/1000.0
		if elapsed > 0 {
			tokens += elapsed * l.RefillPerSecond
		}
		if tokens > float64(l.Capacity) {
			tokens = float64(l.Capacity)
		}
		status.Available = tokens
	}
	if status.RefillPerSecond > 0 && status.Available < float64(l.Capacity) {
		status.SecondsUntilFull = (float64(l.Capacity) - status.Available) / status.RefillPerSecond
	}
	return status, nil
}

// Reset deletes vendor's bucket state; the next take starts from a full
// bucket. Intended for operational tooling and tests.
func (b *RedisBucket) Reset(ctx context.Context, vendor market.VendorID) error {
	return b.client.Del(ctx, bucketKey(vendor)).Err()
}

func parseFloat(v interface{}) (float64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
