package gmaps

import (
	"context"
	"sync"

	"github.com/couchcryptid/minesafe-service/internal/domain"
	"github.com/couchcryptid/minesafe-service/internal/observability"
)

// CachedPlaces wraps a PlaceLookup with an in-memory LRU cache. Place
// coordinates are stable, so resolved places are kept until evicted.
type CachedPlaces struct {
	inner   domain.PlaceLookup
	cache   *lruCache[domain.Place]
	metrics *observability.Metrics
}

// NewCachedPlaces creates a cache decorator around a place lookup.
func NewCachedPlaces(inner domain.PlaceLookup, maxEntries int, metrics *observability.Metrics) *CachedPlaces {
	return &CachedPlaces{
		inner:   inner,
		cache:   newLRUCache[domain.Place](maxEntries),
		metrics: metrics,
	}
}

func (c *CachedPlaces) PlaceDetails(ctx context.Context, placeID string) (domain.Place, error) {
	if place, ok := c.cache.get(placeID); ok {
		c.metrics.PlaceCache.WithLabelValues("hit").Inc()
		return place, nil
	}
	c.metrics.PlaceCache.WithLabelValues("miss").Inc()

	place, err := c.inner.PlaceDetails(ctx, placeID)
	if err != nil {
		// Failures are not cached so the next request retries upstream.
		return place, err
	}
	c.cache.put(placeID, place)
	return place, nil
}

// lruCache is a small thread-safe LRU cache.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry[V]
	head       *entry[V] // most recently used
	tail       *entry[V] // least recently used
}

type entry[V any] struct {
	key   string
	value V
	prev  *entry[V]
	next  *entry[V]
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &lruCache[V]{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value}
	c.entries[key] = e
	c.pushFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictOldest()
	}
}

func (c *lruCache[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.pushFront(e)
}

func (c *lruCache[V]) pushFront(e *entry[V]) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[V]) unlink(e *entry[V]) {
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

func (c *lruCache[V]) evictOldest() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlink(c.tail)
}
