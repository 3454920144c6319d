package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheSetGet(t *testing.T) {
	c := New[string](time.Minute)
	defer c.Close()

	c.Set("a", "alpha")
	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "alpha", got)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	c := New[int](time.Minute)
	defer c.Close()

	c.SetWithTTL("n", 7, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	_, ok := c.Get("n")
	assert.False(t, ok)
}

func TestCacheDelete(t *testing.T) {
	c := New[int](time.Minute)
	defer c.Close()

	c.Set("n", 1)
	c.Delete("n")
	_, ok := c.Get("n")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}
