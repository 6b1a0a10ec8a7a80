package router

import (
	"sync"
	"sync/atomic"

	"github.com/vango-dev/bigpipe/pkg/pagelet"
)

// Cache memoizes resolution results. It never evicts; the key space is bounded
// by the distinct method/path pairs an application actually serves.
//
// Concurrent writers for the same key store equal lists, so population does
// not need to be exclusive: the last Set wins and every reader sees a
// complete list.
type Cache struct {
	entries sync.Map // string -> []*pagelet.Definition
	size    atomic.Int64
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Get returns the memoized list for key.
func (c *Cache) Get(key string) ([]*pagelet.Definition, bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	return v.([]*pagelet.Definition), true
}

// Set stores defs under key. The slice must not be modified afterwards.
func (c *Cache) Set(key string, defs []*pagelet.Definition) {
	if _, loaded := c.entries.Swap(key, defs); !loaded {
		c.size.Add(1)
	}
}

// Invalidate drops a single key.
func (c *Cache) Invalidate(key string) {
	if _, loaded := c.entries.LoadAndDelete(key); loaded {
		c.size.Add(-1)
	}
}

// Reset drops every entry.
func (c *Cache) Reset() {
	c.entries.Range(func(k, _ any) bool {
		c.Invalidate(k.(string))
		return true
	})
}

// Len returns the number of memoized keys.
func (c *Cache) Len() int {
	return int(c.size.Load())
}

// Key returns the cache key for a method and path.
func Key(method, path string) string {
	return method + "@" + path
}

// IDKey returns the cache key for an explicit pagelet id. Id keys start with
// '#', which no method token does, so they never collide with Key.
func IDKey(id string) string {
	return "#" + id
}
