package resilience

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	apperrors "github.com/kbukum/llmkit/errors"
)

// CacheConfig configures a TTL+LRU cache.
type CacheConfig struct {
	// Name identifies this cache for metrics/logging.
	Name string `yaml:"name" mapstructure:"name"`
	// MaxEntries bounds the cache size; inserting beyond it evicts the
	// least-recently-accessed entry.
	MaxEntries int `yaml:"max_entries" mapstructure:"max_entries"`
	// TTL is how long an entry stays valid after creation.
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// DefaultCacheConfig returns sensible defaults.
func DefaultCacheConfig(name string) CacheConfig {
	return CacheConfig{
		Name:       name,
		MaxEntries: 1000,
		TTL:        5 * time.Minute,
	}
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func (c *CacheConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = 1000
	}
	if c.TTL == 0 {
		c.TTL = 5 * time.Minute
	}
}

// Validate checks that size and TTL are positive.
func (c *CacheConfig) Validate() error {
	if c.MaxEntries <= 0 {
		return fmt.Errorf("cache %q: max entries must be positive (got %d)", c.Name, c.MaxEntries)
	}
	if c.TTL <= 0 {
		return fmt.Errorf("cache %q: ttl must be positive (got %v)", c.Name, c.TTL)
	}
	return nil
}

// Valid reports whether the configuration passes validation.
func (c *CacheConfig) Valid() bool {
	return c.Validate() == nil
}

// CacheMetrics is a point-in-time snapshot of cache counters.
type CacheMetrics struct {
	Hits        uint64
	Misses      uint64
	Stores      uint64
	Evictions   uint64
	Expirations uint64
}

// HitRate returns hits/(hits+misses), 0 when no lookups have happened.
func (m CacheMetrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0
	}
	return float64(m.Hits) / float64(total)
}

// cacheEntry carries a value with its expiry and access bookkeeping.
type cacheEntry[V any] struct {
	value        V
	createdAt    time.Time
	ttl          time.Duration
	accessCount  uint64
	lastAccessed time.Time
}

func (e *cacheEntry[V]) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// Cache is a string-keyed TTL+LRU cache.
//
// Expiry is lazy: an entry past its TTL is logically absent and removed on
// the next lookup; Sweep may remove expired entries opportunistically but is
// never required for correctness. Recency ordering is delegated to
// hashicorp's simplelru; all operations run under one lock, so a Get racing
// a Store observes either the old or the new entry, never a torn one.
type Cache[V any] struct {
	mu     sync.Mutex
	config CacheConfig
	lru    *simplelru.LRU[string, *cacheEntry[V]]

	hits        uint64
	misses      uint64
	stores      uint64
	evictions   uint64
	expirations uint64
}

// NewCache creates a new cache.
func NewCache[V any](config CacheConfig) (*Cache[V], error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, apperrors.Configuration(err.Error())
	}

	lru, err := simplelru.NewLRU[string, *cacheEntry[V]](config.MaxEntries, nil)
	if err != nil {
		return nil, apperrors.Configuration(fmt.Sprintf("cache %q: %v", config.Name, err))
	}

	return &Cache[V]{config: config, lru: lru}, nil
}

// Get returns the cached value for key.
// An expired entry is removed and reported as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return zero, false
	}

	now := time.Now()
	if entry.expired(now) {
		c.lru.Remove(key)
		c.expirations++
		c.misses++
		return zero, false
	}

	entry.accessCount++
	entry.lastAccessed = now
	c.hits++
	return entry.value, true
}

// Store inserts value under key with the configured TTL.
// Inserting a new key into a full cache evicts the least-recently-accessed
// entry first; the eviction and insert form one critical section.
func (c *Cache[V]) Store(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	evicted := c.lru.Add(key, &cacheEntry[V]{
		value:        value,
		createdAt:    now,
		ttl:          c.config.TTL,
		lastAccessed: now,
	})
	if evicted {
		c.evictions++
	}
	c.stores++
}

// Invalidate removes the entry for key unconditionally.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Len returns the number of physically present entries, expired included.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// IsEmpty reports whether the cache holds no entries.
func (c *Cache[V]) IsEmpty() bool {
	return c.Len() == 0
}

// Sweep removes expired entries and returns how many were removed.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, key := range c.lru.Keys() {
		if entry, ok := c.lru.Peek(key); ok && entry.expired(now) {
			c.lru.Remove(key)
			c.expirations++
			removed++
		}
	}
	return removed
}

// Metrics returns a snapshot of the cache counters.
func (c *Cache[V]) Metrics() CacheMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheMetrics{
		Hits:        c.hits,
		Misses:      c.misses,
		Stores:      c.stores,
		Evictions:   c.evictions,
		Expirations: c.expirations,
	}
}
