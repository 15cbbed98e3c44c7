package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrFillCachesAcrossCalls(t *testing.T) {
	c := New[string, int](0)
	var loads int64

	loader := func() (int, error) {
		atomic.AddInt64(&loads, 1)
		return 42, nil
	}

	v, loaded, err := c.GetOrFill("a", loader, time.Minute)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, 42, v)

	v, loaded, err = c.GetOrFill("a", loader, time.Minute)
	require.NoError(t, err)
	assert.False(t, loaded)
	assert.Equal(t, 42, v)
	assert.Equal(t, int64(1), atomic.LoadInt64(&loads))
}

func TestGetOrFillCollapsesConcurrentMisses(t *testing.T) {
	c := New[string, int](0)
	var loads int64
	start := make(chan struct{})

	loader := func() (int, error) {
		atomic.AddInt64(&loads, 1)
		<-start
		return 7, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := c.GetOrFill("shared", loader, time.Minute)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&loads))
	for _, r := range results {
		assert.Equal(t, 7, r)
	}
}

func TestGetOrFillDoesNotCacheErrors(t *testing.T) {
	c := New[string, int](0)
	boom := errors.New("boom")
	attempts := 0

	loader := func() (int, error) {
		attempts++
		if attempts == 1 {
			return 0, boom
		}
		return 9, nil
	}

	_, _, err := c.GetOrFill("k", loader, time.Minute)
	require.ErrorIs(t, err, boom)

	v, loaded, err := c.GetOrFill("k", loader, time.Minute)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, 9, v)
	assert.Equal(t, 2, attempts)
}

func TestEntryExpiresAfterTTL(t *testing.T) {
	c := New[string, int](0)
	c.Set("k", 1, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	calls := 0
	v, loaded, err := c.GetOrFill("k", func() (int, error) {
		calls++
		return 2, nil
	}, time.Minute)

	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, calls)
}

func TestLRUEvictsOldestOnOverflow(t *testing.T) {
	c := New[string, int](2)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Set("c", 3, 0)

	stats := c.StatsSnapshot()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, int64(1), stats.Evictions)

	_, _, err := c.GetOrFill("a", func() (int, error) { return 0, errors.New("evicted key misses, so the loader runs") }, time.Minute)
	assert.Error(t, err)
}

func TestInvalidateAndInvalidateAll(t *testing.T) {
	c := New[string, int](0)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)

	c.Invalidate("a")
	assert.Equal(t, 1, c.StatsSnapshot().Size)

	c.InvalidateAll()
	assert.Equal(t, 0, c.StatsSnapshot().Size)
}
