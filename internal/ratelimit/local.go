package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mdgate/internal/errors"
	"mdgate/internal/market"
)

// VendorLimit configures one vendor's token bucket.
type VendorLimit struct {
	Capacity        int     `yaml:"capacity"`
	RefillPerSecond float64 `yaml:"refill_per_second"`
}

// DefaultVendorLimit applies to vendors with no explicit configuration.
var DefaultVendorLimit = VendorLimit{Capacity: 10, RefillPerSecond: 1}

// LocalBucket throttles outbound calls within one process. Acquire blocks
// the calling goroutine until the requested tokens are available, so it is
// suited to the synchronous request path where the wait is bounded by
// bucket capacity and refill rate.
type LocalBucket struct {
	mu       sync.Mutex
	limiters map[market.VendorID]*rate.Limiter
	limits   map[market.VendorID]VendorLimit
}

// NewLocalBucket creates a local limiter with per-vendor limits. Vendors
// not present in limits get DefaultVendorLimit on first use.
func NewLocalBucket(limits map[market.VendorID]VendorLimit) *LocalBucket {
	b := &LocalBucket{
		limiters: make(map[market.VendorID]*rate.Limiter),
		limits:   make(map[market.VendorID]VendorLimit),
	}
	for vendor, l := range limits {
		b.limits[vendor] = l
		b.limiters[vendor] = newLimiter(l)
	}
	return b
}

func effectiveCapacity(l VendorLimit) int {
	if l.Capacity <= 0 {
		return DefaultVendorLimit.Capacity
	}
	return l.Capacity
}

func newLimiter(l VendorLimit) *rate.Limiter {
	if l.Capacity <= 0 {
		l.Capacity = DefaultVendorLimit.Capacity
	}
	if l.RefillPerSecond <= 0 {
		l.RefillPerSecond = DefaultVendorLimit.RefillPerSecond
	}
	return rate.NewLimiter(rate.Limit(l.RefillPerSecond), l.Capacity)
}

// Acquire blocks until cost tokens are available for vendor or ctx is
// cancelled. Costs above the bucket capacity are clamped to it: the local
// bucket smooths this process's call rate, while whole-cost accounting
// for batch requests belongs to the shared bucket.
func (b *LocalBucket) Acquire(ctx context.Context, vendor market.VendorID, cost int) error {
	if cost <= 0 {
		cost = 1
	}
	lim := b.limiter(vendor)
	if cost > lim.Burst() {
		cost = lim.Burst()
	}
	if err := lim.WaitN(ctx, cost); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.RateLimited(string(vendor), b.refillTime(vendor, cost))
	}
	return nil
}

// refillTime estimates how long until cost tokens have accumulated from
// empty, used as the retry hint on rejection.
func (b *LocalBucket) refillTime(vendor market.VendorID, cost int) time.Duration {
	l := b.Limit(vendor)
	if l.RefillPerSecond <= 0 {
		return 0
	}
	return time.Duration(float64(cost) / l.RefillPerSecond * float64(time.Second))
}

// TryAcquire takes cost tokens without blocking and reports success.
func (b *LocalBucket) TryAcquire(vendor market.VendorID, cost int) bool {
	if cost <= 0 {
		cost = 1
	}
	lim := b.limiter(vendor)
	if cost > lim.Burst() {
		cost = lim.Burst()
	}
	return lim.AllowN(timeNow(), cost)
}

// Limit returns the configured limit for vendor.
func (b *LocalBucket) Limit(vendor market.VendorID) VendorLimit {
	b.mu.Lock()
	defer b.mu.Unlock()
	if l, ok := b.limits[vendor]; ok {
		return l
	}
	return DefaultVendorLimit
}

func (b *LocalBucket) limiter(vendor market.VendorID) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	lim, ok := b.limiters[vendor]
	if !ok {
		lim = newLimiter(DefaultVendorLimit)
		b.limiters[vendor] = lim
		b.limits[vendor] = DefaultVendorLimit
	}
	return lim
}
