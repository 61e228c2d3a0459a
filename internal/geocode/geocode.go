package geocode

import (
	"container/list"
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"campuspresence/internal/metrics"
)

// Resolver converts raw coordinates into a coarse, privacy-preserving area name
type Resolver interface {
	Resolve(ctx context.Context, lat, lon float64) (string, error)
}

// CacheConfig holds geocode cache configuration
type CacheConfig struct {
	Capacity  int           // maximum resident entries
	TTL       time.Duration // age past which an entry is treated as absent
	Precision int           // decimal places for the quantized coordinate key
}

// entry is one memoized resolution. A failed or empty resolution is stored
// with ok=false so a failing resolver is not retried on every lookup.
type entry struct {
	key      string
	area     string
	ok       bool
	storedAt time.Time
}

// Cache is a bounded, time-boxed memoization layer in front of a Resolver.
// Eviction is least-recently-accessed; a lookup promotes its entry. The lock
// is not held across the external resolution, so concurrent misses for one
// key may both resolve and the last writer wins.
type Cache struct {
	resolver  Resolver
	capacity  int
	ttl       time.Duration
	precision int

	mu    sync.Mutex
	order *list.List // front = most recently accessed
	index map[string]*list.Element

	now func() time.Time
}

// NewCache creates a new geocode cache in front of the given resolver
func NewCache(resolver Resolver, config CacheConfig) *Cache {
	capacity := config.Capacity
	if capacity <= 0 {
		capacity = 100
	}
	ttl := config.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	precision := config.Precision
	if precision <= 0 {
		precision = 4
	}

	return &Cache{
		resolver:  resolver,
		capacity:  capacity,
		ttl:       ttl,
		precision: precision,
		order:     list.New(),
		index:     make(map[string]*list.Element),
		now:       time.Now,
	}
}

// Resolve returns the coarse area name for the given coordinates, memoized on
// the quantized key. The second return is false when no name is available,
// either because resolution failed or returned nothing. Resolver errors are
// absorbed here and never propagated.
func (c *Cache) Resolve(ctx context.Context, lat, lon float64) (string, bool) {
	key := c.quantize(lat, lon)

	if area, ok, hit := c.lookup(key); hit {
		metrics.ObserveGeocode("hit")
		return area, ok
	}
	metrics.ObserveGeocode("miss")

	area, err := c.resolver.Resolve(ctx, lat, lon)
	ok := err == nil && area != ""
	if err != nil {
		metrics.ObserveGeocode("error")
		log.Printf("geocode: resolution failed for %s: %v", key, err)
	}

	c.store(key, area, ok)
	return area, ok
}

// Len returns the number of resident entries, expired ones included
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// lookup returns the cached value for key; hit is false on a miss or when the
// resident entry is past TTL
func (c *Cache) lookup(key string) (area string, ok bool, hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, found := c.index[key]
	if !found {
		return "", false, false
	}

	e := elem.Value.(*entry)
	if c.now().Sub(e.storedAt) > c.ttl {
		// Expired entries are treated as absent even while resident
		c.order.Remove(elem)
		delete(c.index, key)
		return "", false, false
	}

	c.order.MoveToFront(elem)
	return e.area, e.ok, true
}

// store inserts or overwrites the entry for key and evicts the
// least-recently-accessed entry when over capacity
func (c *Cache) store(key, area string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, found := c.index[key]; found {
		e := elem.Value.(*entry)
		e.area, e.ok, e.storedAt = area, ok, c.now()
		c.order.MoveToFront(elem)
		return
	}

	c.index[key] = c.order.PushFront(&entry{key: key, area: area, ok: ok, storedAt: c.now()})

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(*entry).key)
	}
}

// quantize rounds the coordinate pair to the configured precision so GPS
// jitter within the same grid cell reuses one cached result
func (c *Cache) quantize(lat, lon float64) string {
	return fmt.Sprintf("%.*f,%.*f", c.precision, lat, c.precision, lon)
}
