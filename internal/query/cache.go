// File: internal/query/cache.go
package query

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is a size-bounded LRU whose entries also expire after a TTL. A nil
// Cache is valid and caches nothing.
type Cache[V any] struct {
	lru *expirable.LRU[string, V]
}

// NewCache creates a cache. A non-positive maxSize disables caching.
func NewCache[V any](maxSize int, ttl time.Duration) *Cache[V] {
	if maxSize <= 0 {
		return nil
	}
	return &Cache[V]{lru: expirable.NewLRU[string, V](maxSize, nil, ttl)}
}

// Get returns the value for key and marks it most recently used.
func (c *Cache[V]) Get(key string) (V, bool) {
	if c == nil {
		var zero V
		return zero, false
	}
	return c.lru.Get(key)
}

// Set stores value under key, evicting the least recently used entry when full.
func (c *Cache[V]) Set(key string, value V) {
	if c == nil {
		return
	}
	c.lru.Add(key, value)
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}

func (c *Cache[V]) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
