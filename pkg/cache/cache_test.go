package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SetGet(t *testing.T) {
	c := New[string]()

	_, ok := c.Get("resize-image")
	assert.False(t, ok)

	c.Set("resize-image", "http://localhost:8081")
	got, ok := c.Get("resize-image")
	require.True(t, ok)
	assert.Equal(t, "http://localhost:8081", got)

	// Replacement wins.
	c.Set("resize-image", "http://localhost:9090")
	got, _ = c.Get("resize-image")
	assert.Equal(t, "http://localhost:9090", got)
}

func TestCache_DeleteClear(t *testing.T) {
	c := New[int]()
	c.Set("a", 1)
	c.Set("b", 2)
	require.Equal(t, 2, c.Len())

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Keys())
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New[int]()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", n%8)
			c.Set(key, n)
			c.Get(key)
			c.Keys()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, c.Len())
}
