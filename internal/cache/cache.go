// Package cache is a small in-memory TTL cache for serialized resolve
// results. The UI re-resolves the same URL whenever the user revisits
// format choices; a short-lived cache spares the repeat probe.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/grabfrom/core/internal/logger"
)

const (
	defaultMaxEntries = 256
	sweepInterval     = time.Minute
)

type item struct {
	value     string
	expiresAt time.Time
}

// Cache maps keys to string values with per-entry expiry. Values are
// serialized by the caller; the cache itself is type-agnostic.
type Cache struct {
	mu       sync.Mutex
	items    map[string]item
	maxSize  int
	stop     chan struct{}
	stopOnce sync.Once
	log      *logger.Logger
}

// New creates a cache bounded to maxEntries and starts its expiry
// sweeper. maxEntries <= 0 selects the default bound.
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	c := &Cache{
		items:   make(map[string]item),
		maxSize: maxEntries,
		stop:    make(chan struct{}),
		log:     logger.Default().WithComponent("cache"),
	}
	go c.sweeper()
	return c
}

// Close stops the expiry sweeper.
func (c *Cache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

// Get returns the value for key if present and not expired.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[key]
	if !ok {
		return "", false
	}
	if time.Now().After(it.expiresAt) {
		delete(c.items, key)
		return "", false
	}
	c.log.Debug(context.Background(), "cache hit", map[string]interface{}{"key": key})
	return it.value, true
}

// Set stores value under key for ttl. When the cache is full an
// arbitrary entry is evicted after expired ones are swept.
func (c *Cache) Set(key, value string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxSize {
		now := time.Now()
		for k, it := range c.items {
			if now.After(it.expiresAt) {
				delete(c.items, k)
			}
		}
		if len(c.items) >= c.maxSize {
			// Still full: map iteration order picks the victim.
			for k := range c.items {
				delete(c.items, k)
				break
			}
		}
	}

	c.items[key] = item{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
}

// Delete removes key if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Len returns the number of live entries, expired ones included until
// the next sweep.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache) sweeper() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for k, it := range c.items {
				if now.After(it.expiresAt) {
					delete(c.items, k)
				}
			}
			c.mu.Unlock()
		}
	}
}
