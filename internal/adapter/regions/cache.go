package regions

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/couchcryptid/malaria-risk-index/internal/domain"
	"github.com/couchcryptid/malaria-risk-index/internal/observability"
)

// CachedResolver wraps a RegionResolver with an in-memory LRU and an optional
// persistent Store behind it. Only successful resolutions are cached.
type CachedResolver struct {
	inner   domain.RegionResolver
	store   *Store
	cache   *lruCache
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewCachedResolver creates a cache decorator around a resolver. store may be nil.
func NewCachedResolver(inner domain.RegionResolver, store *Store, maxEntries int, metrics *observability.Metrics, logger *slog.Logger) *CachedResolver {
	return &CachedResolver{
		inner:   inner,
		store:   store,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
		logger:  logger,
	}
}

// Resolve implements domain.RegionResolver.
func (c *CachedResolver) Resolve(ctx context.Context, name string) (domain.Region, error) {
	if region, ok := c.cache.get(name); ok {
		c.metrics.RegionCache.WithLabelValues("memory", "hit").Inc()
		c.metrics.RegionLookups.WithLabelValues("success").Inc()
		return region, nil
	}
	c.metrics.RegionCache.WithLabelValues("memory", "miss").Inc()

	if c.store != nil {
		region, ok, err := c.store.Get(name)
		switch {
		case err != nil:
			// A corrupt entry is rewritten after the next successful lookup.
			c.logger.Warn("region store read failed", "region", name, "error", err)
		case ok:
			c.metrics.RegionCache.WithLabelValues("disk", "hit").Inc()
			c.metrics.RegionLookups.WithLabelValues("success").Inc()
			c.cache.put(name, region)
			return region, nil
		default:
			c.metrics.RegionCache.WithLabelValues("disk", "miss").Inc()
		}
	}

	region, err := c.inner.Resolve(ctx, name)
	if err != nil {
		outcome := "error"
		if errors.Is(err, domain.ErrRegionNotFound) {
			outcome = "not_found"
		}
		c.metrics.RegionLookups.WithLabelValues(outcome).Inc()
		return domain.Region{}, err
	}
	c.metrics.RegionLookups.WithLabelValues("success").Inc()

	c.cache.put(name, region)
	if c.store != nil {
		if err := c.store.Put(region); err != nil {
			c.logger.Warn("region store write failed", "region", name, "error", err)
		}
	}
	return region, nil
}

// lruCache is a simple thread-safe LRU cache for resolved regions.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value domain.Region
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (domain.Region, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.Region{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value domain.Region) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlink(c.tail)
}
