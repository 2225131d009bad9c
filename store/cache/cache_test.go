package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, config Config) *Cache {
	t.Helper()
	c := New(config)
	t.Cleanup(c.Close)
	return c
}

func counting(calls *atomic.Int32, value any) Fetcher {
	return func(context.Context) (any, error) {
		calls.Add(1)
		return value, nil
	}
}

func TestFetchCachesFreshValue(t *testing.T) {
	c := newTestCache(t, DefaultConfig())
	ctx := context.Background()
	var calls atomic.Int32

	v, err := c.Fetch(ctx, "projects", counting(&calls, "first"))
	require.NoError(t, err)
	assert.Equal(t, "first", v)

	v, err = c.Fetch(ctx, "projects", counting(&calls, "second"))
	require.NoError(t, err)
	assert.Equal(t, "first", v)
	assert.Equal(t, int32(1), calls.Load())

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestFetchRequiresKey(t *testing.T) {
	c := newTestCache(t, DefaultConfig())
	_, err := c.Fetch(context.Background(), "", counting(new(atomic.Int32), nil))
	assert.Error(t, err)
}

func TestFetchDeduplicatesConcurrentCallers(t *testing.T) {
	c := newTestCache(t, DefaultConfig())
	var calls atomic.Int32
	release := make(chan struct{})

	fetch := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return []string{"a"}, nil
	}

	const callers = 10
	var started, wg sync.WaitGroup
	results := make([]any, callers)
	for i := 0; i < callers; i++ {
		started.Add(1)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			v, err := c.Fetch(context.Background(), "projects?search=a", fetch)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	started.Wait()
	// Give every goroutine time to join the flight before it completes.
	require.Eventually(t, func() bool {
		e, ok := c.Peek("projects?search=a")
		return ok && e.Fetching && c.Stats().Misses == callers
	}, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, []string{"a"}, v)
	}
}

func TestFetchDistinctKeysRunConcurrently(t *testing.T) {
	c := newTestCache(t, DefaultConfig())
	var inflight, peak atomic.Int32
	release := make(chan struct{})

	fetch := func(context.Context) (any, error) {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		inflight.Add(-1)
		return "ok", nil
	}

	var wg sync.WaitGroup
	for _, key := range []string{"projects", "users"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, err := c.Fetch(context.Background(), key, fetch)
			assert.NoError(t, err)
		}(key)
	}
	require.Eventually(t, func() bool { return inflight.Load() == 2 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(2), peak.Load())
}

func TestInvalidateForcesRefetch(t *testing.T) {
	c := newTestCache(t, DefaultConfig())
	ctx := context.Background()
	var calls atomic.Int32

	_, err := c.Fetch(ctx, "projects", counting(&calls, 1))
	require.NoError(t, err)

	assert.True(t, c.Invalidate("projects"))
	assert.False(t, c.Invalidate("users"))

	e, ok := c.Peek("projects")
	require.True(t, ok)
	assert.True(t, e.Stale)
	assert.Equal(t, 1, e.Value)

	v, err := c.Fetch(ctx, "projects", counting(&calls, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, int32(2), calls.Load())

	e, _ = c.Peek("projects")
	assert.False(t, e.Stale)
}

func TestInvalidateDuringFlightDoesNotServeOldResult(t *testing.T) {
	c := newTestCache(t, DefaultConfig())
	ctx := context.Background()
	release := make(chan struct{})

	done := make(chan any)
	go func() {
		v, _ := c.Fetch(ctx, "projects", func(context.Context) (any, error) {
			<-release
			return "before-mutation", nil
		})
		done <- v
	}()
	require.Eventually(t, func() bool {
		e, ok := c.Peek("projects")
		return ok && e.Fetching
	}, time.Second, time.Millisecond)

	// A mutation completes while the read is still in flight.
	c.Invalidate("projects")
	close(release)
	assert.Equal(t, "before-mutation", <-done)

	e, ok := c.Peek("projects")
	require.True(t, ok)
	assert.True(t, e.Stale, "a result fetched before invalidation must stay stale")

	v, err := c.Fetch(ctx, "projects", func(context.Context) (any, error) { return "after-mutation", nil })
	require.NoError(t, err)
	assert.Equal(t, "after-mutation", v)
}

func TestDeleteDuringFlightDropsOldResult(t *testing.T) {
	c := newTestCache(t, DefaultConfig())
	ctx := context.Background()
	release := make(chan struct{})

	done := make(chan any)
	go func() {
		v, _ := c.Fetch(ctx, "projects", func(context.Context) (any, error) {
			<-release
			return "before-mutation", nil
		})
		done <- v
	}()
	require.Eventually(t, func() bool {
		e, ok := c.Peek("projects")
		return ok && e.Fetching
	}, time.Second, time.Millisecond)

	c.Delete("projects")
	assert.False(t, c.Invalidate("projects"))
	close(release)
	assert.Equal(t, "before-mutation", <-done)

	_, ok := c.Peek("projects")
	assert.False(t, ok, "a result for a removed entry must not be stored")

	var calls atomic.Int32
	v, err := c.Fetch(ctx, "projects", counting(&calls, "after-mutation"))
	require.NoError(t, err)
	assert.Equal(t, "after-mutation", v)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEvictionSkipsPendingFetch(t *testing.T) {
	c := newTestCache(t, Config{MaxItems: 1})
	ctx := context.Background()
	release := make(chan struct{})

	done := make(chan any)
	go func() {
		v, _ := c.Fetch(ctx, "projects", func(context.Context) (any, error) {
			<-release
			return "before-mutation", nil
		})
		done <- v
	}()
	require.Eventually(t, func() bool {
		e, ok := c.Peek("projects")
		return ok && e.Fetching
	}, time.Second, time.Millisecond)

	// Over capacity, but the pending entry stays reachable by invalidation.
	_, err := c.Fetch(ctx, "employees", counting(new(atomic.Int32), "e"))
	require.NoError(t, err)
	assert.True(t, c.Invalidate("projects"))
	close(release)
	<-done

	v, err := c.Fetch(ctx, "projects", counting(new(atomic.Int32), "after-mutation"))
	require.NoError(t, err)
	assert.Equal(t, "after-mutation", v)
}

func TestInvalidateMatching(t *testing.T) {
	c := newTestCache(t, DefaultConfig())
	ctx := context.Background()
	for _, key := range []string{"contracts", "contracts?employeeId=e1", "contracts?employeeId=e2", "employees/e1"} {
		_, err := c.Fetch(ctx, key, counting(new(atomic.Int32), key))
		require.NoError(t, err)
	}

	keys := c.InvalidateMatching(func(key string) bool { return key == "contracts" || key == "contracts?employeeId=e1" })
	assert.Equal(t, []string{"contracts", "contracts?employeeId=e1"}, keys)

	e, _ := c.Peek("contracts?employeeId=e2")
	assert.False(t, e.Stale)
	assert.Equal(t, int64(2), c.Stats().Invalidations)
}

func TestFetchErrorIsNotCached(t *testing.T) {
	c := newTestCache(t, DefaultConfig())
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := c.Fetch(ctx, "projects", func(context.Context) (any, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	e, ok := c.Peek("projects")
	require.True(t, ok)
	assert.False(t, e.HasValue)
	assert.ErrorIs(t, e.Err, boom)

	v, err := c.Fetch(ctx, "projects", func(context.Context) (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	e, _ = c.Peek("projects")
	assert.NoError(t, e.Err)
}

func TestFetchCallerCancellation(t *testing.T) {
	c := newTestCache(t, DefaultConfig())
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Fetch(ctx, "projects", func(context.Context) (any, error) {
		<-release
		return "late", nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(t, Config{DefaultTTL: 30 * time.Millisecond, CleanupInterval: time.Hour})
	ctx := context.Background()
	var calls atomic.Int32

	_, err := c.Fetch(ctx, "projects", counting(&calls, "v"))
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)

	e, ok := c.Peek("projects")
	require.True(t, ok)
	assert.True(t, e.Stale)

	_, err = c.Fetch(ctx, "projects", counting(&calls, "v"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCleanupExpired(t *testing.T) {
	var evicted []string
	c := newTestCache(t, Config{
		DefaultTTL:      20 * time.Millisecond,
		CleanupInterval: time.Hour,
		OnEviction:      func(key string, _ any) { evicted = append(evicted, key) },
	})
	_, err := c.Fetch(context.Background(), "projects", counting(new(atomic.Int32), "v"))
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, c.CleanupExpired())
	assert.Equal(t, 0, c.Size())
	assert.Equal(t, []string{"projects"}, evicted)
}

func TestLRUEviction(t *testing.T) {
	var evicted []string
	c := newTestCache(t, Config{MaxItems: 3, OnEviction: func(key string, _ any) { evicted = append(evicted, key) }})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		_, err := c.Fetch(ctx, fmt.Sprintf("key%d", i), counting(new(atomic.Int32), i))
		require.NoError(t, err)
	}

	// Touch key1 so key2 becomes least recently used.
	_, err := c.Fetch(ctx, "key1", counting(new(atomic.Int32), 0))
	require.NoError(t, err)

	_, err = c.Fetch(ctx, "key4", counting(new(atomic.Int32), 4))
	require.NoError(t, err)

	assert.Equal(t, 3, c.Size())
	assert.Equal(t, []string{"key2"}, evicted)
	assert.Equal(t, []string{"key1", "key3", "key4"}, c.Keys())
}

func TestSubscribe(t *testing.T) {
	c := newTestCache(t, DefaultConfig())
	_, err := c.Fetch(context.Background(), "projects", counting(new(atomic.Int32), "v"))
	require.NoError(t, err)

	var got []string
	cancel := c.Subscribe(func(key string) { got = append(got, key) })
	c.Invalidate("projects")
	cancel()
	c.Invalidate("projects")

	assert.Equal(t, []string{"projects"}, got)
}

func TestDeleteAndClear(t *testing.T) {
	c := newTestCache(t, DefaultConfig())
	ctx := context.Background()
	for _, key := range []string{"a", "b"} {
		_, err := c.Fetch(ctx, key, counting(new(atomic.Int32), key))
		require.NoError(t, err)
	}

	c.Delete("a")
	_, ok := c.Peek("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Size())

	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestCloseIsIdempotent(t *testing.T) {
	c := New(DefaultConfig())
	c.Close()
	c.Close()
}
