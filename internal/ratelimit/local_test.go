package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdgate/internal/errors"
	"mdgate/internal/market"
)

func TestLocalBucketAcquire(t *testing.T) {
	b := NewLocalBucket(map[market.VendorID]VendorLimit{
		"polygon": {Capacity: 5, RefillPerSecond: 100},
	})
	ctx := context.Background()

	// A full bucket serves capacity tokens without waiting.
	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Acquire(ctx, "polygon", 1))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	// The next acquire has to wait for refill, but not long at 100/s.
	start = time.Now()
	require.NoError(t, b.Acquire(ctx, "polygon", 1))
	assert.Greater(t, time.Since(start), 5*time.Millisecond)
}

func TestLocalBucketContextCancel(t *testing.T) {
	b := NewLocalBucket(map[market.VendorID]VendorLimit{
		"slow": {Capacity: 1, RefillPerSecond: 0.001},
	})

	require.NoError(t, b.Acquire(context.Background(), "slow", 1))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := b.Acquire(ctx, "slow", 1)
	assert.Error(t, err)
}

func TestLocalBucketClampsCostToCapacity(t *testing.T) {
	b := NewLocalBucket(map[market.VendorID]VendorLimit{
		"polygon": {Capacity: 10, RefillPerSecond: 1},
	})

	// A batch reservation larger than the bucket drains a full bucket
	// instead of failing outright.
	start := time.Now()
	require.NoError(t, b.Acquire(context.Background(), "polygon", 106))
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	// The full bucket really was consumed.
	assert.False(t, b.TryAcquire("polygon", 10))
}

func TestLocalBucketRejectionIsTyped(t *testing.T) {
	b := NewLocalBucket(map[market.VendorID]VendorLimit{
		"slow": {Capacity: 1, RefillPerSecond: 0.001},
	})
	require.NoError(t, b.Acquire(context.Background(), "slow", 1))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := b.Acquire(ctx, "slow", 1)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindRateLimit))
	assert.Greater(t, errors.AsProviderError(err, "").RetryAfter, time.Duration(0))
}

func TestLocalBucketTryAcquire(t *testing.T) {
	b := NewLocalBucket(map[market.VendorID]VendorLimit{
		"v": {Capacity: 2, RefillPerSecond: 0.001},
	})

	assert.True(t, b.TryAcquire("v", 2))
	assert.False(t, b.TryAcquire("v", 1))
}

func TestLocalBucketUnknownVendorGetsDefaults(t *testing.T) {
	b := NewLocalBucket(nil)

	require.NoError(t, b.Acquire(context.Background(), "surprise", 1))
	assert.Equal(t, DefaultVendorLimit, b.Limit("surprise"))
}

func TestEstimateCost(t *testing.T) {
	day := int64(24 * 60 * 60)
	tests := []struct {
		name      string
		req       market.BarsRequest
		pageLimit int
		want      int
	}{
		{
			name:      "one day of minutes fits one page",
			req:       market.BarsRequest{Timeframe: market.TimeframeMinute, Start: 0, End: day},
			pageLimit: 5000,
			want:      1,
		},
		{
			name:      "thirty days of minutes paginates",
			req:       market.BarsRequest{Timeframe: market.TimeframeMinute, Start: 0, End: 30 * day},
			pageLimit: 5000,
			want:      9, // 43200 bars / 5000 per page
		},
		{
			name:      "daily bars are cheap",
			req:       market.BarsRequest{Timeframe: market.TimeframeDay, Start: 0, End: 365 * day},
			pageLimit: 5000,
			want:      1,
		},
		{
			name:      "inverted range costs one",
			req:       market.BarsRequest{Timeframe: market.TimeframeHour, Start: day, End: 0},
			pageLimit: 5000,
			want:      1,
		},
		{
			name:      "zero page limit uses default",
			req:       market.BarsRequest{Timeframe: market.TimeframeMinute, Start: 0, End: day},
			pageLimit: 0,
			want:      1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateCost(tt.req, tt.pageLimit))
		})
	}
}
