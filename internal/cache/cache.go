// SPDX-License-Identifier: MIT

// Package cache provides the analysis result cache: computed M-max values,
// reflex curves and suspected-H listings keyed by session and parameter
// fingerprint, with TTL expiry.
package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Cache stores serialized analysis results with expiration.
type Cache interface {
	// Get retrieves a cached result. Returns false if not found or expired.
	Get(key string) ([]byte, bool)
	// Set stores a result with the specified TTL.
	Set(key string, value []byte, ttl time.Duration)
	// Delete removes a single result.
	Delete(key string)
	// Invalidate removes every result belonging to one session.
	Invalidate(sessionID string)
	// Clear removes all results.
	Clear()
	// Stats returns cache performance counters.
	Stats() Stats
}

// Stats holds cache performance counters.
type Stats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Sets        int64 `json:"sets"`
	Evictions   int64 `json:"evictions"`
	CurrentSize int   `json:"current_size"`
}

// Key builds a cache key from the session, the analysis kind and a
// fingerprint of the parameters that influence the result.
func Key(sessionID, kind string, paramParts ...string) string {
	h := xxhash.New()
	for _, part := range paramParts {
		_, _ = h.WriteString(part)
		_, _ = h.WriteString("\x1f")
	}
	return fmt.Sprintf("%s:%s:%016x", sessionID, kind, h.Sum64())
}

type entry struct {
	value      []byte
	expiration time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiration)
}

// MemoryCache is the in-process implementation of Cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*entry
	stats   Stats
	stop    chan struct{}
	once    sync.Once
}

// NewMemoryCache creates an in-memory cache. If cleanupInterval is positive a
// janitor goroutine evicts expired entries at that interval; call Close to
// stop it.
func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]*entry),
		stop:    make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.janitor(cleanupInterval)
	}
	return c
}

// Close stops the janitor goroutine.
func (c *MemoryCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *MemoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.deleteExpired()
		}
	}
}

func (c *MemoryCache) deleteExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			c.stats.Evictions++
		}
	}
}

// Get retrieves a cached result.
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found || e.expired(time.Now()) {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return e.value, true
}

// Set stores a result with a TTL.
func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry{value: value, expiration: time.Now().Add(ttl)}
	c.stats.Sets++
}

// Delete removes a single result.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Invalidate removes every result belonging to one session.
func (c *MemoryCache) Invalidate(sessionID string) {
	prefix := sessionID + ":"
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// Clear removes all results.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// Stats returns cache performance counters.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.CurrentSize = len(c.entries)
	return stats
}
