// Package data provides historical market data access with caching
// and a synthetic fallback generator.
package data

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/solphase/dlmm-backend/pkg/types"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dlmm_data_cache_hits_total",
		Help: "Number of historical data cache hits",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dlmm_data_cache_misses_total",
		Help: "Number of historical data cache misses",
	})
	cacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dlmm_data_cache_evictions_total",
		Help: "Number of historical data cache evictions",
	})
)

// cacheEntry is a single cached dataset
type cacheEntry struct {
	key       string
	data      *types.HistoricalData
	expiresAt time.Time
	size      int64 // estimated bytes
	hits      int64
}

// Cache is a bounded TTL cache for historical datasets. Entries are
// evicted oldest-inserted-first when the capacity is reached, and
// lazily on TTL expiry. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*cacheEntry
	order    []string // insertion order, oldest first
}

// DefaultCacheTTL is used when no TTL is configured.
const DefaultCacheTTL = 12 * time.Hour

// NewCache creates a cache holding at most capacity datasets, each
// valid for ttl after insertion.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 16
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*cacheEntry),
		order:    make([]string, 0, capacity),
	}
}

// Get returns the cached dataset for key, or nil if absent or expired.
func (c *Cache) Get(key string) *types.HistoricalData {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		cacheMisses.Inc()
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		c.remove(key)
		cacheMisses.Inc()
		return nil
	}
	entry.hits++
	cacheHits.Inc()
	return entry.data
}

// Put inserts a dataset, evicting the oldest entry if the cache is full.
func (c *Cache) Put(key string, data *types.HistoricalData) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.remove(key)
	}

	for len(c.entries) >= c.capacity && len(c.order) > 0 {
		c.remove(c.order[0])
		cacheEvictions.Inc()
	}

	c.entries[key] = &cacheEntry{
		key:       key,
		data:      data,
		expiresAt: time.Now().Add(c.ttl),
		size:      estimateSize(data),
	}
	c.order = append(c.order, key)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Hits returns the hit counter for key, 0 if absent.
func (c *Cache) Hits(key string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[key]; ok {
		return entry.hits
	}
	return 0
}

// Clear drops all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.order = c.order[:0]
}

// remove deletes key from the map and the insertion-order list.
// Caller must hold c.mu.
func (c *Cache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// estimateSize approximates the memory footprint of a dataset.
func estimateSize(data *types.HistoricalData) int64 {
	if data == nil {
		return 0
	}
	const pricePointBytes = 160
	const liquidityPointBytes = 96
	return int64(len(data.PricePoints))*pricePointBytes +
		int64(len(data.LiquidityPoints))*liquidityPointBytes
}
