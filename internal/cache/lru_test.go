package cache

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_Defaults(t *testing.T) {
	c := New[string, int](0, 0)
	assert.Equal(t, defaultCapacity, c.capacity)
	assert.Equal(t, defaultTTL, c.ttl)
}

func TestLRU_SetGet(t *testing.T) {
	c := New[string, int](4, time.Minute)
	c.Set("a", 1)
	c.Set("a", 2)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())

	_, ok = c.Get("missing")
	assert.False(t, ok)
	assert.True(t, c.Remove("a"))
	assert.False(t, c.Remove("a"))
}

func TestLRU_Eviction(t *testing.T) {
	c := New[string, int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	_, _ = c.Get("a") // a is now most recent
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestLRU_Expiration(t *testing.T) {
	now := time.Unix(1700000000, 0)
	c := New[string, int](10, time.Second)
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	c.Set("b", 2)
	now = now.Add(2 * time.Second)
	c.Set("c", 3)

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.CleanupExpired())
	assert.Equal(t, 1, c.Len())
}

func TestLRU_GetOrSet(t *testing.T) {
	c := New[string, *int](10, time.Minute)
	calls := 0
	create := func() *int { calls++; v := calls; return &v }

	first := c.GetOrSet("ip", create)
	second := c.GetOrSet("ip", create)
	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestLRU_Concurrent(t *testing.T) {
	c := New[string, int](50, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := strconv.Itoa((i * j) % 80)
				c.GetOrSet(key, func() int { return j })
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}
