package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUWithTTL_BasicOperations(t *testing.T) {
	c, err := NewLRUWithTTL[string, int](3, 0)
	require.NoError(t, err)
	defer c.Close()

	c.Set("key1", 42)
	val, ok := c.Get("key1")
	assert.True(t, ok)
	assert.Equal(t, 42, val)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	c.Set("key2", 100)
	c.Set("key3", 200)
	// key1 is now the least recently used
	c.Set("key4", 300)

	_, ok = c.Get("key1")
	assert.False(t, ok, "key1 should have been evicted")
	val, ok = c.Get("key4")
	assert.True(t, ok)
	assert.Equal(t, 300, val)
	assert.Equal(t, 3, c.Len())
}

func TestLRUWithTTL_Expiration(t *testing.T) {
	c, err := NewLRUWithTTL[string, string](10, 50*time.Millisecond)
	require.NoError(t, err)

	c.Set("key1", "value1")
	_, ok := c.Get("key1")
	assert.True(t, ok)

	time.Sleep(100 * time.Millisecond)

	_, ok = c.Get("key1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry should be removed on access")
}

func TestLRUWithTTL_CleanupExpired(t *testing.T) {
	c, err := NewLRUWithTTL[int, int](10, 30*time.Millisecond)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		c.Set(i, i)
	}
	time.Sleep(60 * time.Millisecond)
	c.Set(99, 99)

	assert.Equal(t, 5, c.CleanupExpired())
	assert.Equal(t, 1, c.Len())

	noTTL, err := NewLRUWithTTL[int, int](10, 0)
	require.NoError(t, err)
	noTTL.Set(1, 1)
	assert.Equal(t, 0, noTTL.CleanupExpired())
}

func TestLRUWithTTL_Stats(t *testing.T) {
	c, err := NewLRUWithTTL[string, int](2, 0)
	require.NoError(t, err)

	c.Set("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("b")
	c.Set("b", 2)
	c.Set("c", 3)

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(1), stats.Evicted)
	assert.Equal(t, 2, stats.Size)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 1e-12)
}

func TestLRUWithTTL_InvalidSize(t *testing.T) {
	_, err := NewLRUWithTTL[string, int](0, 0)
	assert.Error(t, err)
}

func TestLRUWithTTL_Concurrent(t *testing.T) {
	c, err := NewLRUWithTTL[int, int](64, time.Minute)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				c.Set(i%100, w)
				c.Get(i % 100)
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 64)
	stats := c.Stats()
	assert.Equal(t, uint64(8*500), stats.Hits+stats.Misses)
}
