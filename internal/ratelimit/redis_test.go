package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdgate/internal/errors"
	"mdgate/internal/market"
)

func newTestBucket(t *testing.T, limits map[market.VendorID]VendorLimit, opts ...RedisBucketOption) *RedisBucket {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisBucket(client, limits, opts...)
}

func TestRedisBucketTake(t *testing.T) {
	b := newTestBucket(t, map[market.VendorID]VendorLimit{
		"polygon": {Capacity: 3, RefillPerSecond: 0},
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := b.Take(ctx, "polygon", 1)
		require.NoError(t, err)
		assert.True(t, ok, "take %d should succeed from a full bucket", i)
	}

	ok, err := b.Take(ctx, "polygon", 1)
	require.NoError(t, err)
	assert.False(t, ok, "frozen bucket must reject once drained")
}

func TestRedisBucketTakeMultiTokenCost(t *testing.T) {
	b := newTestBucket(t, map[market.VendorID]VendorLimit{
		"polygon": {Capacity: 10, RefillPerSecond: 0},
	})
	ctx := context.Background()

	ok, err := b.Take(ctx, "polygon", 7)
	require.NoError(t, err)
	assert.True(t, ok)

	// 3 tokens left: a cost-5 batch is rejected whole, not partially.
	ok, err = b.Take(ctx, "polygon", 5)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = b.Take(ctx, "polygon", 3)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisBucketNoDoubleSpend(t *testing.T) {
	b := newTestBucket(t, map[market.VendorID]VendorLimit{
		"strict": {Capacity: 1, RefillPerSecond: 0},
	})
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := b.Take(ctx, "strict", 1)
			require.NoError(t, err)
			results[i] = ok
		}(i)
	}
	wg.Wait()

	// Exactly one of the two concurrent takes may win the single token.
	assert.NotEqual(t, results[0], results[1])
}

func TestRedisBucketRefill(t *testing.T) {
	b := newTestBucket(t, map[market.VendorID]VendorLimit{
		"v": {Capacity: 2, RefillPerSecond: 1000},
	})
	ctx := context.Background()

	ok, err := b.Take(ctx, "v", 2)
	require.NoError(t, err)
	require.True(t, ok)

	// At 1000 tokens/s a short sleep refills the bucket to capacity.
	time.Sleep(20 * time.Millisecond)

	ok, err = b.Take(ctx, "v", 2)
	require.NoError(t, err)
	assert.True(t, ok, "bucket should have refilled")
}

func TestRedisBucketWaitTimeout(t *testing.T) {
	b := newTestBucket(t, map[market.VendorID]VendorLimit{
		"strict": {Capacity: 1, RefillPerSecond: 0},
	}, WithPollInterval(5*time.Millisecond, 10*time.Millisecond))
	ctx := context.Background()

	ok, err := b.Take(ctx, "strict", 1)
	require.NoError(t, err)
	require.True(t, ok)

	start := time.Now()
	err = b.Wait(ctx, "strict", 1, 40*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindRateLimit))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestRedisBucketWaitZeroBudgetStillAttempts(t *testing.T) {
	b := newTestBucket(t, map[market.VendorID]VendorLimit{
		"v": {Capacity: 1, RefillPerSecond: 0},
	})

	// The bucket is full, so the single mandatory attempt succeeds even
	// with no wait budget at all.
	err := b.Wait(context.Background(), "v", 1, 0)
	assert.NoError(t, err)

	err = b.Wait(context.Background(), "v", 1, 0)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindRateLimit))
}

func TestRedisBucketWaitSucceedsAfterRefill(t *testing.T) {
	b := newTestBucket(t, map[market.VendorID]VendorLimit{
		"v": {Capacity: 1, RefillPerSecond: 50},
	}, WithPollInterval(5*time.Millisecond, 10*time.Millisecond))
	ctx := context.Background()

	ok, err := b.Take(ctx, "v", 1)
	require.NoError(t, err)
	require.True(t, ok)

	// One token refills in 20ms; Wait should pick it up well inside 500ms.
	err = b.Wait(ctx, "v", 1, 500*time.Millisecond)
	assert.NoError(t, err)
}

func TestRedisBucketWaitContextCancel(t *testing.T) {
	b := newTestBucket(t, map[market.VendorID]VendorLimit{
		"v": {Capacity: 1, RefillPerSecond: 0},
	}, WithPollInterval(20*time.Millisecond, 30*time.Millisecond))

	_, err := b.Take(context.Background(), "v", 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err = b.Wait(ctx, "v", 1, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisBucketStatus(t *testing.T) {
	b := newTestBucket(t, map[market.VendorID]VendorLimit{
		"v": {Capacity: 10, RefillPerSecond: 2},
	})
	ctx := context.Background()

	// Before any take the bucket reports full capacity.
	st, err := b.Status(ctx, "v")
	require.NoError(t, err)
	assert.Equal(t, 10, st.Capacity)
	assert.Equal(t, float64(10), st.Available)
	assert.Equal(t, float64(0), st.SecondsUntilFull)

	ok, err := b.Take(ctx, "v", 6)
	require.NoError(t, err)
	require.True(t, ok)

	st, err = b.Status(ctx, "v")
	require.NoError(t, err)
	assert.InDelta(t, 4, st.Available, 1.0)
	assert.Greater(t, st.SecondsUntilFull, 0.0)
	assert.Equal(t, 2.0, st.RefillPerSecond)
}

func TestRedisBucketReset(t *testing.T) {
	b := newTestBucket(t, map[market.VendorID]VendorLimit{
		"v": {Capacity: 1, RefillPerSecond: 0},
	})
	ctx := context.Background()

	ok, err := b.Take(ctx, "v", 1)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, b.Reset(ctx, "v"))

	ok, err = b.Take(ctx, "v", 1)
	require.NoError(t, err)
	assert.True(t, ok, "reset should restore a full bucket")
}
