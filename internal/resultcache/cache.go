package resultcache

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"sticker-press/internal/logging"
	"sticker-press/internal/metrics"
)

// Result is a finished conversion owned by the cache (or, transiently, by
// the job that produced it). Its download URL stays valid for as long as the
// entry is cached; eviction or purge revokes it exactly once.
type Result struct {
	Key               string
	Bytes             []byte
	Token             string
	DownloadURL       string
	SuggestedFilename string
	CreatedAt         time.Time
}

// Revoker releases a published download URL. Satisfied by urlstore.Store.
type Revoker interface {
	Revoke(token string) bool
}

// Config controls cache capacity and entry lifetime.
type Config struct {
	// MaxEntries caps the number of cached results; the least recently
	// used entry is evicted when a new one would exceed it.
	MaxEntries int

	// MaxAge is how long an entry may live before the purge loop removes
	// it. The loop runs at half this interval.
	MaxAge time.Duration
}

// DefaultConfig returns the standard cache sizing.
func DefaultConfig() Config {
	return Config{
		MaxEntries: 10,
		MaxAge:     30 * time.Minute,
	}
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Entries     int   `json:"entries"`
	Bytes       int64 `json:"bytes"`
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
	Expirations int64 `json:"expirations"`
}

// Cache is the process-wide store of conversion results, keyed by source
// file identity. It combines LRU capacity eviction with age-based purging,
// and revokes each evicted entry's download URL through the Revoker.
//
// The cache is constructed once at startup and injected into its consumers;
// there is no package-level instance.
type Cache struct {
	mu  sync.Mutex
	lru *simplelru.LRU[string, *Result]

	revoker Revoker
	maxAge  time.Duration

	bytes       int64
	hits        int64
	misses      int64
	evictions   int64
	expirations int64

	// set while onEvict should count the removal as an expiration
	expiring bool

	stopOnce sync.Once
	stopChan chan struct{}
}

// New creates a Cache. Call Start to run the background purge loop and
// Close to stop it and release all entries.
func New(cfg Config, revoker Revoker) (*Cache, error) {
	if cfg.MaxEntries <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", cfg.MaxEntries)
	}
	if cfg.MaxAge <= 0 {
		return nil, fmt.Errorf("cache max age must be positive, got %v", cfg.MaxAge)
	}

	c := &Cache{
		revoker:  revoker,
		maxAge:   cfg.MaxAge,
		stopChan: make(chan struct{}),
	}

	lru, err := simplelru.NewLRU[string, *Result](cfg.MaxEntries, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU: %w", err)
	}
	c.lru = lru

	return c, nil
}

// onEvict runs under c.mu for every removal path (capacity eviction,
// explicit Remove, purge, Close), which centralizes exactly-once URL
// revocation.
func (c *Cache) onEvict(_ string, r *Result) {
	c.bytes -= int64(len(r.Bytes))
	if c.expiring {
		c.expirations++
		metrics.CacheExpirations.Inc()
	} else {
		c.evictions++
		metrics.CacheEvictions.Inc()
	}
	if c.revoker != nil {
		c.revoker.Revoke(r.Token)
	}
}

// Start launches the purge loop at half the configured max age.
func (c *Cache) Start() {
	go c.purgeLoop(c.maxAge / 2)
}

func (c *Cache) purgeLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := c.PurgeExpired(); n > 0 {
				logging.Debug("Result cache purged %d expired entries", n)
			}
		case <-c.stopChan:
			return
		}
	}
}

// Get returns a live, non-expired entry and refreshes its recency. An
// expired entry found here is removed (and its URL revoked) and counts as a
// miss.
func (c *Cache) Get(key string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.lru.Peek(key)
	if !ok {
		c.misses++
		metrics.CacheMisses.Inc()
		return nil, false
	}

	if time.Since(r.CreatedAt) > c.maxAge {
		c.expiring = true
		c.lru.Remove(key)
		c.expiring = false
		c.misses++
		metrics.CacheMisses.Inc()
		return nil, false
	}

	// Touch for LRU ordering: a hit counts as a use.
	c.lru.Get(key)
	c.hits++
	metrics.CacheHits.Inc()
	return r, true
}

// Put inserts a result, evicting the least recently used entry first if the
// cache is full. Inserting over an existing key releases the old entry.
func (c *Cache) Put(r *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// simplelru's Add overwrites in place without the evict callback, so
	// release a same-key predecessor explicitly.
	if old, ok := c.lru.Peek(r.Key); ok && old.Token != r.Token {
		c.lru.Remove(r.Key)
	}

	c.bytes += int64(len(r.Bytes))
	c.lru.Add(r.Key, r)
	metrics.CacheEntries.Set(float64(c.lru.Len()))
	metrics.CacheBytes.Set(float64(c.bytes))
}

// Contains reports whether key is cached and not expired, without touching
// recency.
func (c *Cache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.lru.Peek(key)
	return ok && time.Since(r.CreatedAt) <= c.maxAge
}

// Owns reports whether key is cached with exactly this token, without
// touching recency. Jobs use it to tell cache-owned results apart from
// results whose entry has already been displaced.
func (c *Cache) Owns(key, token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.lru.Peek(key)
	return ok && r.Token == token
}

// RemoveOwned drops the entry for key only if it still holds the given
// token, revoking its URL. The check and removal are atomic so a
// concurrent replacement cannot lose its URL to a stale caller.
func (c *Cache) RemoveOwned(key, token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.lru.Peek(key)
	if !ok || r.Token != token {
		return false
	}
	c.lru.Remove(key)
	metrics.CacheEntries.Set(float64(c.lru.Len()))
	metrics.CacheBytes.Set(float64(c.bytes))
	return true
}

// Remove drops one entry, revoking its URL. Returns whether it was present.
func (c *Cache) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ok := c.lru.Remove(key)
	metrics.CacheEntries.Set(float64(c.lru.Len()))
	metrics.CacheBytes.Set(float64(c.bytes))
	return ok
}

// PurgeExpired removes every entry older than the max age and returns how
// many were removed.
func (c *Cache) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-c.maxAge)
	var stale []string
	for _, key := range c.lru.Keys() {
		if r, ok := c.lru.Peek(key); ok && r.CreatedAt.Before(cutoff) {
			stale = append(stale, key)
		}
	}

	c.expiring = true
	for _, key := range stale {
		c.lru.Remove(key)
	}
	c.expiring = false

	metrics.CacheEntries.Set(float64(c.lru.Len()))
	metrics.CacheBytes.Set(float64(c.bytes))
	return len(stale)
}

// Clear drops every entry, revoking all URLs. Returns how many were removed.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.lru.Len()
	c.lru.Purge()
	metrics.CacheEntries.Set(0)
	metrics.CacheBytes.Set(float64(c.bytes))
	return n
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Entries:     c.lru.Len(),
		Bytes:       c.bytes,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
	}
}

// Close stops the purge loop and releases every entry.
func (c *Cache) Close() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
	c.Clear()
}
