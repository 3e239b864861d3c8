// Package cache provides the TTL caches used for external search results,
// popular books, and computed recommendations. Entries are bounded and can be
// invalidated explicitly when the underlying data changes.
package cache

import (
	"sync"
	"time"
)

// Cache stores string payloads under namespaced keys with a TTL.
type Cache interface {
	Get(key string) (string, bool)
	Set(key, value string, ttl time.Duration)
	Delete(key string)
	// DeletePrefix drops every entry whose key starts with prefix. Mutation
	// hooks use it to invalidate a whole namespace at once.
	DeletePrefix(prefix string)
}

type memoryEntry struct {
	value    string
	expires  time.Time
	lastUsed time.Time
}

// MemoryCache is a bounded in-process Cache with lazy TTL eviction. When full
// it evicts the least recently used entry.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	maxEntries int
	now        func() time.Time
}

// NewMemoryCache constructs a MemoryCache holding at most maxEntries items.
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &MemoryCache{
		entries:    make(map[string]memoryEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *MemoryCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	now := c.now()
	if now.After(entry.expires) {
		delete(c.entries, key)
		return "", false
	}
	entry.lastUsed = now
	c.entries[key] = entry
	return entry.value, true
}

func (c *MemoryCache) Set(key, value string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.entries[key] = memoryEntry{
		value:    value,
		expires:  now.Add(ttl),
		lastUsed: now,
	}
}

func (c *MemoryCache) evictLocked(now time.Time) {
	// Prefer dropping an expired entry; otherwise the least recently used.
	var victim string
	var oldest time.Time
	for key, entry := range c.entries {
		if now.After(entry.expires) {
			delete(c.entries, key)
			return
		}
		if victim == "" || entry.lastUsed.Before(oldest) {
			victim = key
			oldest = entry.lastUsed
		}
	}
	if victim != "" {
		delete(c.entries, victim)
	}
}

func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *MemoryCache) DeletePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
		}
	}
}

// Len reports the live entry count (test hook).
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
