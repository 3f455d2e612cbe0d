package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/b3cast/internal/metrics"
)

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func counter(calls *int32, value string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		atomic.AddInt32(calls, 1)
		return value, nil
	}
}

func TestGetOrCompute_WithinTTLComputesOnce(t *testing.T) {
	clock := NewManualClock(t0)
	c := New(WithClock(clock))
	ctx := context.Background()
	var calls int32

	v1, err := GetOrCompute(ctx, c, "catalog:SA", time.Hour, counter(&calls, "a"))
	require.NoError(t, err)
	clock.Advance(59 * time.Minute)
	v2, err := GetOrCompute(ctx, c, "catalog:SA", time.Hour, counter(&calls, "b"))
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls)
	assert.Equal(t, "a", v1)
	assert.Equal(t, "a", v2)
}

func TestGetOrCompute_AcrossExpiryComputesTwice(t *testing.T) {
	clock := NewManualClock(t0)
	c := New(WithClock(clock))
	ctx := context.Background()
	var calls int32

	_, err := GetOrCompute(ctx, c, "catalog:SA", time.Hour, counter(&calls, "a"))
	require.NoError(t, err)
	clock.Advance(time.Hour)
	v, err := GetOrCompute(ctx, c, "catalog:SA", time.Hour, counter(&calls, "b"))
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls)
	assert.Equal(t, "b", v, "expired value must never be served")
}

func TestGetOrCompute_ErrorsAreNotCached(t *testing.T) {
	c := New(WithClock(NewManualClock(t0)))
	ctx := context.Background()
	boom := errors.New("provider down")
	var calls int32

	_, err := GetOrCompute(ctx, c, "k", time.Hour, func(context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)

	v, err := GetOrCompute(ctx, c, "k", time.Hour, func(context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, int32(2), calls)
}

func TestGetOrCompute_ZeroTTLDoesNotStore(t *testing.T) {
	c := New(WithClock(NewManualClock(t0)))
	var calls int32

	for i := 0; i < 3; i++ {
		_, err := GetOrCompute(context.Background(), c, "forecast:PETR4.SA", 0, counter(&calls, "x"))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), calls)
	assert.Equal(t, 0, c.Len())
}

func TestGetOrComputeTTL_ComputeChoosesLifetime(t *testing.T) {
	clock := NewManualClock(t0)
	c := New(WithClock(clock))
	var calls int32

	compute := func(context.Context) (string, time.Duration, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return "fallback", 5 * time.Minute, nil
		}
		return "live", 24 * time.Hour, nil
	}

	v, err := GetOrComputeTTL(context.Background(), c, "catalog:SA", compute)
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)

	clock.Advance(6 * time.Minute)
	v, err = GetOrComputeTTL(context.Background(), c, "catalog:SA", compute)
	require.NoError(t, err)
	assert.Equal(t, "live", v)

	clock.Advance(time.Hour)
	v, err = GetOrComputeTTL(context.Background(), c, "catalog:SA", compute)
	require.NoError(t, err)
	assert.Equal(t, "live", v)
	assert.Equal(t, int32(2), calls)
}

func TestGetOrCompute_ConcurrentMissesShareOneCompute(t *testing.T) {
	c := New(WithClock(NewManualClock(t0)))
	var calls int32
	release := make(chan struct{})

	compute := func(context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 42, nil
	}

	const n = 16
	var wg sync.WaitGroup
	results := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := GetOrCompute(context.Background(), c, "valid:PETR4.SA", time.Hour, compute)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	// let the goroutines pile up on the in-flight call
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestGetOrCompute_CancelledLeaderDoesNotFailWaiters(t *testing.T) {
	c := New(WithClock(NewManualClock(t0)))
	started := make(chan struct{})
	release := make(chan struct{})
	var computeErr error

	compute := func(ctx context.Context) (int, error) {
		close(started)
		<-release
		computeErr = ctx.Err()
		return 7, nil
	}

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := GetOrCompute(leaderCtx, c, "forecast:PETR4.SA", time.Hour, compute)
		leaderErr <- err
	}()
	<-started

	waiter := make(chan int, 1)
	go func() {
		v, err := GetOrCompute(context.Background(), c, "forecast:PETR4.SA", time.Hour, compute)
		assert.NoError(t, err)
		waiter <- v
	}()

	cancel()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	// let the waiter join the in-flight call before it finishes
	time.Sleep(50 * time.Millisecond)
	close(release)

	assert.Equal(t, 7, <-waiter)
	assert.NoError(t, computeErr)
	assert.Equal(t, 1, c.Len())
}

func TestGetOrCompute_DoneContextSkipsCompute(t *testing.T) {
	c := New(WithClock(NewManualClock(t0)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := GetOrCompute(ctx, c, "catalog:SA", time.Hour, func(context.Context) (string, error) {
		t.Error("compute called with a done context")
		return "", nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, c.Len())
}

func TestCache_Purge(t *testing.T) {
	clock := NewManualClock(t0)
	c := New(WithClock(clock))
	ctx := context.Background()
	var calls int32

	_, _ = GetOrCompute(ctx, c, "short", time.Minute, counter(&calls, "a"))
	_, _ = GetOrCompute(ctx, c, "long", time.Hour, counter(&calls, "b"))
	require.Equal(t, 2, c.Len())

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 1, c.Len())
}

func TestCache_TypeMismatchRecomputes(t *testing.T) {
	c := New(WithClock(NewManualClock(t0)))
	ctx := context.Background()

	_, err := GetOrCompute(ctx, c, "k", time.Hour, func(context.Context) (string, error) { return "s", nil })
	require.NoError(t, err)

	_, err = GetOrCompute(ctx, c, "k", time.Hour, func(context.Context) (int, error) { return 1, nil })
	assert.NoError(t, err)
}

func TestCache_RecordsHitsAndMisses(t *testing.T) {
	m := metrics.New()
	c := New(WithClock(NewManualClock(t0)), WithMetrics(m))
	var calls int32

	for i := 0; i < 3; i++ {
		_, err := GetOrCompute(context.Background(), c, "catalog:SA", time.Hour, counter(&calls, "a"))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls)
}
