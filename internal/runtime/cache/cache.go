// Package cache keeps instrumented oracle scripts in memory.
package cache

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/owasm-vm/owasmvm/types"
)

// Key identifies instrumented code. The same script instrumented under a
// different configuration is a different entry.
type Key struct {
	Checksum types.Checksum
	Config   [32]byte
}

// NewKey derives the cache key of code validated under cfg.
func NewKey(checksum types.Checksum, cfg types.Config) Key {
	return Key{Checksum: checksum, Config: cfg.Fingerprint()}
}

// Cache is a size-bounded LRU of instrumented bytecode. It holds plain bytes
// only, so evicting an entry never invalidates a module in use.
type Cache struct {
	lru    *lru.Cache[Key, []byte]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// Metrics are the counters of a Cache.
type Metrics struct {
	Hits   uint64
	Misses uint64
	Size   int
}

// New creates a cache holding up to size entries. A zero size disables it.
func New(size uint32) (*Cache, error) {
	c := &Cache{}
	if size == 0 {
		return c, nil
	}
	l, err := lru.New[Key, []byte](int(size))
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

// Get returns the instrumented code stored under key.
func (c *Cache) Get(key Key) ([]byte, bool) {
	if c.lru == nil {
		c.misses.Add(1)
		return nil, false
	}
	code, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return code, true
}

// Add stores instrumented code. The slice must not be modified afterwards.
func (c *Cache) Add(key Key, code []byte) {
	if c.lru == nil {
		return
	}
	c.lru.Add(key, code)
}

// Remove evicts every entry of checksum.
func (c *Cache) Remove(checksum types.Checksum) {
	if c.lru == nil {
		return
	}
	for _, k := range c.lru.Keys() {
		if k.Checksum == checksum {
			c.lru.Remove(k)
		}
	}
}

// Purge empties the cache.
func (c *Cache) Purge() {
	if c.lru != nil {
		c.lru.Purge()
	}
}

// Metrics returns the hit and miss counters and the number of entries.
func (c *Cache) Metrics() Metrics {
	m := Metrics{Hits: c.hits.Load(), Misses: c.misses.Load()}
	if c.lru != nil {
		m.Size = c.lru.Len()
	}
	return m
}
