package ratelimit

import (
	"context"
	"time"

	"mdgate/internal/market"
	"mdgate/internal/monitoring"
)

// Limiter is what provider clients call before every network request.
type Limiter interface {
	Acquire(ctx context.Context, vendor market.VendorID, cost int) error
}

// Gate chains the two bucket flavors: the local bucket smooths bursts
// within this process cheaply, then the shared Redis bucket (when
// configured) makes all running instances collectively respect the
// vendor's global limit. Tokens taken locally are not refunded when the
// shared take times out; tokens model call attempts, not successes.
type Gate struct {
	Local         *LocalBucket
	Shared        *RedisBucket
	MaxSharedWait time.Duration

	// Metrics, when set, records time spent waiting for tokens and
	// acquisitions that were rejected.
	Metrics *monitoring.Metrics
}

const defaultMaxSharedWait = 30 * time.Second

// NewGate builds a Gate over the local bucket and an optional shared one.
func NewGate(local *LocalBucket, shared *RedisBucket) *Gate {
	return &Gate{Local: local, Shared: shared, MaxSharedWait: defaultMaxSharedWait}
}

// Acquire blocks until cost tokens are held in every configured bucket, or
// fails with the underlying limiter's error.
func (g *Gate) Acquire(ctx context.Context, vendor market.VendorID, cost int) error {
	start := time.Now()
	err := g.acquire(ctx, vendor, cost)
	if g.Metrics != nil {
		g.Metrics.LimiterWaitTime.WithLabelValues(string(vendor)).Observe(time.Since(start).Seconds())
		if err != nil {
			g.Metrics.LimiterRejects.WithLabelValues(string(vendor)).Inc()
		}
	}
	return err
}

func (g *Gate) acquire(ctx context.Context, vendor market.VendorID, cost int) error {
	if g.Local != nil {
		if err := g.Local.Acquire(ctx, vendor, cost); err != nil {
			return err
		}
	}
	if g.Shared != nil {
		maxWait := g.MaxSharedWait
		if maxWait <= 0 {
			maxWait = defaultMaxSharedWait
		}
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining < maxWait {
				maxWait = remaining
			}
		}
		return g.Shared.Wait(ctx, vendor, cost, maxWait)
	}
	return nil
}
