package memory

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/artpar/schemaql/domain/value"
	"github.com/artpar/schemaql/ports"
)

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// cacheShard is a single shard of the cache.
type cacheShard[V any] struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry[V]
}

// Cache is a sharded in-memory key/value cache with per-entry TTL.
// Expired entries are removed when read or by the periodic janitor;
// until then AllKeys still lists them.
type Cache[V any] struct {
	shards    []*cacheShard[V]
	numShards int
	now       func() time.Time
	cleanup   *time.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

// CacheConfig configures the cache.
type CacheConfig struct {
	NumShards       int              // Number of shards (default: 32)
	CleanupInterval time.Duration    // Janitor period (default: 5m, negative disables)
	Now             func() time.Time // Clock (default: time.Now)
}

// NewCache creates a cache.
func NewCache[V any](cfg CacheConfig) *Cache[V] {
	if cfg.NumShards <= 0 {
		cfg.NumShards = 32
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	c := &Cache[V]{
		shards:    make([]*cacheShard[V], cfg.NumShards),
		numShards: cfg.NumShards,
		now:       cfg.Now,
		done:      make(chan struct{}),
	}
	for i := range c.shards {
		c.shards[i] = &cacheShard[V]{entries: make(map[string]cacheEntry[V])}
	}

	if cfg.CleanupInterval > 0 {
		c.cleanup = time.NewTicker(cfg.CleanupInterval)
		go c.cleanupLoop()
	}

	return c
}

// NewResultCache creates a cache of sub-query results.
func NewResultCache(cfg CacheConfig) *Cache[[]value.Row] {
	return NewCache[[]value.Row](cfg)
}

func (c *Cache[V]) getShard(key string) *cacheShard[V] {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%uint32(c.numShards)]
}

// Get returns the live value for key. An expired entry is removed and
// reported as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	shard := c.getShard(key)
	now := c.now()

	shard.mu.RLock()
	e, ok := shard.entries[key]
	shard.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if now.Before(e.expiresAt) {
		return e.value, true
	}

	shard.mu.Lock()
	if cur, ok := shard.entries[key]; ok && !now.Before(cur.expiresAt) {
		delete(shard.entries, key)
	}
	shard.mu.Unlock()
	return zero, false
}

// Put stores v for ttl, replacing any previous entry. A ttl <= 0 stores
// nothing.
func (c *Cache[V]) Put(key string, v V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	shard := c.getShard(key)
	shard.mu.Lock()
	shard.entries[key] = cacheEntry[V]{value: v, expiresAt: c.now().Add(ttl)}
	shard.mu.Unlock()
}

// Evict removes key.
func (c *Cache[V]) Evict(key string) {
	shard := c.getShard(key)
	shard.mu.Lock()
	delete(shard.entries, key)
	shard.mu.Unlock()
}

// Clear removes every entry.
func (c *Cache[V]) Clear() {
	for _, shard := range c.shards {
		shard.mu.Lock()
		shard.entries = make(map[string]cacheEntry[V])
		shard.mu.Unlock()
	}
}

// AllKeys returns every stored key, sorted, expired or not.
func (c *Cache[V]) AllKeys() []string {
	var keys []string
	for _, shard := range c.shards {
		shard.mu.RLock()
		for k := range shard.entries {
			keys = append(keys, k)
		}
		shard.mu.RUnlock()
	}
	sort.Strings(keys)
	return keys
}

// AllEntries returns a snapshot of the unexpired entries.
func (c *Cache[V]) AllEntries() map[string]V {
	now := c.now()
	out := make(map[string]V)
	for _, shard := range c.shards {
		shard.mu.RLock()
		for k, e := range shard.entries {
			if now.Before(e.expiresAt) {
				out[k] = e.value
			}
		}
		shard.mu.RUnlock()
	}
	return out
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.entries)
		shard.mu.RUnlock()
	}
	return total
}

func (c *Cache[V]) cleanupLoop() {
	for {
		select {
		case <-c.cleanup.C:
			c.purgeExpired()
		case <-c.done:
			return
		}
	}
}

func (c *Cache[V]) purgeExpired() {
	now := c.now()
	for _, shard := range c.shards {
		shard.mu.Lock()
		for k, e := range shard.entries {
			if !now.Before(e.expiresAt) {
				delete(shard.entries, k)
			}
		}
		shard.mu.Unlock()
	}
}

// Close stops the janitor.
func (c *Cache[V]) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.cleanup != nil {
			c.cleanup.Stop()
		}
	})
	return nil
}

// Ensure interface compliance.
var _ ports.ResultCache = (*Cache[[]value.Row])(nil)
