// Package cache provides an optional TTL-bounded LRU for query responses.
// Keys derive deterministically from normalized query text plus the sorted
// context list, so equivalent queries hit regardless of whitespace, casing,
// or context ordering.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultSize bounds entry count; DefaultTTL bounds staleness. Tax-law
	// reference material changes slowly, so an hour is conservative.
	DefaultSize = 256
	DefaultTTL  = time.Hour
)

// Cache is a thread-safe expiring LRU. A nil *Cache is valid and disables
// caching: Get always misses and Set is a no-op.
type Cache[V any] struct {
	lru *expirable.LRU[string, V]
}

// New creates a cache with the given capacity and TTL. Non-positive values
// fall back to the defaults.
func New[V any](size int, ttl time.Duration) *Cache[V] {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[V]{
		lru: expirable.NewLRU[string, V](size, nil, ttl),
	}
}

// Key derives the deterministic cache key. The query is lowercased and
// trimmed; contexts are sorted before hashing so order does not matter.
func Key(query string, contexts []string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(query))))

	if len(contexts) > 0 {
		sorted := make([]string, len(contexts))
		copy(sorted, contexts)
		sort.Strings(sorted)
		for _, c := range sorted {
			h.Write([]byte{0})
			h.Write([]byte(c))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached value for a query, if present and unexpired.
func (c *Cache[V]) Get(query string, contexts []string) (V, bool) {
	if c == nil {
		var zero V
		return zero, false
	}
	return c.lru.Get(Key(query, contexts))
}

// Set stores a value for a query.
func (c *Cache[V]) Set(query string, contexts []string, value V) {
	if c == nil {
		return
	}
	c.lru.Add(Key(query, contexts), value)
}

// Invalidate removes a query's entry, reporting whether one was present.
func (c *Cache[V]) Invalidate(query string, contexts []string) bool {
	if c == nil {
		return false
	}
	return c.lru.Remove(Key(query, contexts))
}

// Purge drops all entries.
func (c *Cache[V]) Purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}

// Len reports the current entry count.
func (c *Cache[V]) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
