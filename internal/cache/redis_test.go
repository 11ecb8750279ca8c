// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// setupMiniRedis creates a test Redis server using miniredis.
func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cache := &RedisCache{
		client: client,
		logger: zerolog.Nop(),
	}
	return mr, cache
}

func TestRedisCacheSetGet(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()

	cache.Set("test-key", []byte("test-value"), 5*time.Minute)

	val, found := cache.Get("test-key")
	if !found {
		t.Fatal("expected value to be found")
	}
	if string(val) != "test-value" {
		t.Errorf("expected 'test-value', got %q", val)
	}

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Sets != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestRedisCacheMiss(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()

	if _, found := cache.Get("nope"); found {
		t.Fatal("expected miss")
	}
	if stats := cache.Stats(); stats.Misses != 1 {
		t.Errorf("expected one miss, got %+v", stats)
	}
}

func TestRedisCacheUnreachableCountsMiss(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	mr.Close()

	// A failed Get degrades to a miss so callers recompute the result.
	if _, found := cache.Get("k"); found {
		t.Fatal("expected miss when Redis is unreachable")
	}
	if stats := cache.Stats(); stats.Misses != 1 {
		t.Errorf("expected one miss, got %+v", stats)
	}

	// A failed Set must not count as a successful write.
	cache.Set("k", []byte("v"), time.Minute)
	if stats := cache.Stats(); stats.Sets != 0 {
		t.Errorf("expected no sets, got %+v", stats)
	}
}

func TestRedisCacheExpiry(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()

	cache.Set("k", []byte("v"), time.Second)
	mr.FastForward(2 * time.Second)

	if _, found := cache.Get("k"); found {
		t.Fatal("expected entry to expire")
	}
}

func TestRedisCacheDelete(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()

	cache.Set("k", []byte("v"), time.Minute)
	cache.Delete("k")

	if _, found := cache.Get("k"); found {
		t.Fatal("expected entry to be deleted")
	}
}

func TestRedisCacheInvalidateSession(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()

	cache.Set(Key("s1", "mmax", "rms"), []byte("1"), time.Minute)
	cache.Set(Key("s1", "curve", "rms"), []byte("2"), time.Minute)
	cache.Set(Key("s2", "mmax", "rms"), []byte("3"), time.Minute)

	cache.Invalidate("s1")

	if _, found := cache.Get(Key("s1", "mmax", "rms")); found {
		t.Error("s1 mmax should be gone")
	}
	if _, found := cache.Get(Key("s1", "curve", "rms")); found {
		t.Error("s1 curve should be gone")
	}
	if _, found := cache.Get(Key("s2", "mmax", "rms")); !found {
		t.Error("s2 should stay cached")
	}
}

func TestRedisCacheClear(t *testing.T) {
	mr, cache := setupMiniRedis(t)
	defer mr.Close()

	cache.Set("a", []byte("1"), time.Minute)
	cache.Set("b", []byte("2"), time.Minute)
	cache.Clear()

	if _, found := cache.Get("a"); found {
		t.Fatal("expected cache to be empty")
	}
}
