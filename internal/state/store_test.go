package state

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SetGetDelete(t *testing.T) {
	s := NewStore(nil, nil)
	defer s.Close()

	assert.Equal(t, "fallback", s.Get("missing", "fallback"))

	s.Set("page:dashboard", "model-a", SetOptions{})
	assert.Equal(t, "model-a", s.Get("page:dashboard", nil))

	s.Delete("page:dashboard")
	assert.Nil(t, s.Get("page:dashboard", nil))
}

func TestStore_SubscribersNotifiedInOrder(t *testing.T) {
	s := NewStore(nil, nil)
	defer s.Close()

	var order []string
	s.Subscribe("k", func(v interface{}) { order = append(order, "first:"+v.(string)) })
	unsub := s.Subscribe("k", func(v interface{}) { order = append(order, "second:"+v.(string)) })

	s.Set("k", "a", SetOptions{})
	assert.Equal(t, []string{"first:a", "second:a"}, order)

	unsub()
	unsub() // repeat removal is a no-op

	s.Set("k", "b", SetOptions{})
	assert.Equal(t, []string{"first:a", "second:a", "first:b"}, order)

	// Silent writes update the value without notifying.
	s.Set("k", "c", SetOptions{Silent: true})
	assert.Equal(t, "c", s.Get("k", nil))
	assert.Len(t, order, 3)
}

func TestStore_PanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	s := NewStore(nil, nil)
	defer s.Close()

	var got interface{}
	s.Subscribe("k", func(interface{}) { panic("boom") })
	s.Subscribe("k", func(v interface{}) { got = v })

	s.Set("k", 7, SetOptions{})
	assert.Equal(t, 7, got)
}

func TestStore_SetWithCacheWinsOverState(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(newMemoryCacheAt(clock.Now), nil)
	defer s.Close()

	s.Set("metrics", "cached", SetOptions{Cache: true, CacheTTL: 10 * time.Second})
	assert.Equal(t, "cached", s.Get("metrics", nil))

	// Once the cache copy expires the plain state value still answers.
	clock.Advance(11 * time.Second)
	assert.Equal(t, "cached", s.Get("metrics", nil))
}

func TestStore_GetCachedOrFetch(t *testing.T) {
	s := NewStore(nil, nil)
	defer s.Close()

	var calls atomic.Int32
	fetch := func(ctx context.Context) (interface{}, error) {
		calls.Add(1)
		return "payload", nil
	}

	v, err := s.GetCachedOrFetch(context.Background(), "datasets", fetch, FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "payload", v)
	assert.Equal(t, int32(1), calls.Load())

	// Second call inside the TTL is served from cache.
	v, err = s.GetCachedOrFetch(context.Background(), "datasets", fetch, FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "payload", v)
	assert.Equal(t, int32(1), calls.Load())

	// ForceRefresh bypasses the cache read.
	_, err = s.GetCachedOrFetch(context.Background(), "datasets", fetch, FetchOptions{ForceRefresh: true})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestStore_ConcurrentFetchesShareOneFlight(t *testing.T) {
	s := NewStore(nil, nil)
	defer s.Close()

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (interface{}, error) {
		calls.Add(1)
		close(started)
		<-release
		return "shared", nil
	}

	results := make(chan interface{}, 10)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := s.GetCachedOrFetch(context.Background(), "models", fetch, FetchOptions{})
		require.NoError(t, err)
		results <- v
	}()

	<-started
	for i := 0; i < 9; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.GetCachedOrFetch(context.Background(), "models", fetch, FetchOptions{})
			require.NoError(t, err)
			results <- v
		}()
	}

	// Give the joiners a moment to park on the in-flight entry, then let
	// the single fetch settle.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	count := 0
	for v := range results {
		assert.Equal(t, "shared", v)
		count++
	}
	assert.Equal(t, 10, count)
	assert.Equal(t, int32(1), calls.Load(), "racing callers must share one backend call")
}

func TestStore_FailedFetchNotCached(t *testing.T) {
	s := NewStore(nil, nil)
	defer s.Close()

	boom := errors.New("backend down")
	var calls atomic.Int32
	failing := func(ctx context.Context) (interface{}, error) {
		calls.Add(1)
		return nil, boom
	}

	_, err := s.GetCachedOrFetch(context.Background(), "alerts", failing, FetchOptions{})
	require.ErrorIs(t, err, boom)

	// The failure was not cached: the next call fetches again.
	_, err = s.GetCachedOrFetch(context.Background(), "alerts", failing, FetchOptions{})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), calls.Load())

	// And the pending map is clean, so a later success caches normally.
	v, err := s.GetCachedOrFetch(context.Background(), "alerts", func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	}, FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestStore_WaiterHonorsContextCancellation(t *testing.T) {
	s := NewStore(nil, nil)
	defer s.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _ = s.GetCachedOrFetch(context.Background(), "slow", func(ctx context.Context) (interface{}, error) {
			close(started)
			<-release
			return "late", nil
		}, FetchOptions{})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.GetCachedOrFetch(ctx, "slow", nil, FetchOptions{})
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
}

func TestStore_InvalidateForcesRefetch(t *testing.T) {
	s := NewStore(nil, nil)
	defer s.Close()

	var calls atomic.Int32
	fetch := func(ctx context.Context) (interface{}, error) {
		calls.Add(1)
		return calls.Load(), nil
	}

	v, err := s.GetCachedOrFetch(context.Background(), "pipelines", fetch, FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), v)

	s.Invalidate("pipelines")

	v, err = s.GetCachedOrFetch(context.Background(), "pipelines", fetch, FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), v, "invalidation must force a backend call")
}

func TestStore_InvalidateDuringFlightDetachesIt(t *testing.T) {
	s := NewStore(nil, nil)
	defer s.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		v, err := s.GetCachedOrFetch(context.Background(), "services", func(ctx context.Context) (interface{}, error) {
			close(started)
			<-release
			return "stale", nil
		}, FetchOptions{})
		require.NoError(t, err)
		assert.Equal(t, "stale", v)
	}()
	<-started

	// Invalidate while the fetch is out: the settled flight must not
	// resurrect a pending entry, and fresh callers start a new fetch.
	s.Invalidate("services")
	close(release)
	<-done

	// The stale flight still cached its value after settling; a forced
	// refresh gets fresh data regardless.
	v, err := s.GetCachedOrFetch(context.Background(), "services", func(ctx context.Context) (interface{}, error) {
		return "fresh", nil
	}, FetchOptions{ForceRefresh: true})
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
}

func TestStore_CacheStats(t *testing.T) {
	s := NewStore(nil, nil)
	defer s.Close()

	s.Set("k", 1, SetOptions{Cache: true})
	s.Get("k", nil)       // hit
	s.Get("missing", nil) // miss

	stats := s.CacheStats()
	assert.Equal(t, int64(1), stats.TotalHits)
	assert.Equal(t, int64(1), stats.TotalMisses)
	assert.Equal(t, int64(1), stats.TotalSets)
	assert.Equal(t, 0.5, stats.HitRate)
}
