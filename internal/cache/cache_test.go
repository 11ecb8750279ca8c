// SPDX-License-Identifier: MIT

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyIsStableAndParamSensitive(t *testing.T) {
	k1 := Key("s1", "mmax", "rms", "2.0")
	k2 := Key("s1", "mmax", "rms", "2.0")
	k3 := Key("s1", "mmax", "rms", "3.0")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.Contains(t, k1, "s1:mmax:")
}

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k", []byte("v"), time.Minute)
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, 1, stats.CurrentSize)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()

	c.Set("k", []byte("v"), -time.Second)
	_, ok := c.Get("k")
	assert.False(t, ok, "expired entries are misses")
}

func TestMemoryCacheJanitorEvicts(t *testing.T) {
	c := NewMemoryCache(10 * time.Millisecond)
	defer c.Close()

	c.Set("k", []byte("v"), time.Millisecond)
	assert.Eventually(t, func() bool {
		return c.Stats().CurrentSize == 0
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryCacheDeleteAndClear(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()

	c.Set("a", []byte("1"), time.Minute)
	c.Set("b", []byte("2"), time.Minute)

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Stats().CurrentSize)
}

func TestMemoryCacheInvalidateSession(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()

	c.Set(Key("s1", "mmax", "rms"), []byte("1"), time.Minute)
	c.Set(Key("s1", "curve", "rms"), []byte("2"), time.Minute)
	c.Set(Key("s2", "mmax", "rms"), []byte("3"), time.Minute)

	c.Invalidate("s1")

	_, ok := c.Get(Key("s1", "mmax", "rms"))
	assert.False(t, ok)
	_, ok = c.Get(Key("s1", "curve", "rms"))
	assert.False(t, ok)
	_, ok = c.Get(Key("s2", "mmax", "rms"))
	assert.True(t, ok, "other sessions stay cached")
}
