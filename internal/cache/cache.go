// Package cache implements the page cache: an LRU keyed by packed page
// position, weighted by each page's memory estimate rather than by entry
// count. Re-inserting a resident key refreshes its recency, which the store
// uses to keep internal pages resident longer than leaves.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/pagedb/resource"
)

// PageCache is a memory-cost-weighted LRU cache. It is safe for concurrent
// use.
type PageCache struct {
	mu        sync.Mutex
	capacity  int64
	size      int64
	items     map[uint64]*list.Element
	evictList *list.List
	rc        *resource.Controller

	hits   atomic.Int64
	misses atomic.Int64
}

type entry struct {
	key   uint64
	value any
	cost  int64
}

// New creates a page cache bounded by capacity bytes of page memory.
// If rc is non-nil, cached bytes are charged against its memory budget.
func New(capacity int64, rc *resource.Controller) *PageCache {
	return &PageCache{
		capacity:  capacity,
		items:     make(map[uint64]*list.Element),
		evictList: list.New(),
		rc:        rc,
	}
}

// Get returns the cached value for key, refreshing its recency.
func (c *PageCache) Get(key uint64) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(ent)
		return ent.Value.(*entry).value, true
	}
	c.misses.Add(1)
	return nil, false
}

// Set caches value under key with the given memory cost. Setting a resident
// key refreshes its recency and updates the cost.
func (c *PageCache) Set(key uint64, value any, cost int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.evictList.MoveToFront(ent)
		e := ent.Value.(*entry)
		if delta := cost - e.cost; delta > 0 {
			if !c.rc.TryAcquireMemory(delta) {
				// Budget denied the growth; keep the old entry.
				return
			}
		} else if delta < 0 {
			c.rc.ReleaseMemory(-delta)
		}
		c.size += cost - e.cost
		e.value = value
		e.cost = cost
		c.evict()
		return
	}

	if cost > c.capacity {
		// Larger than the whole cache; not worth evicting everything.
		return
	}

	for c.size+cost > c.capacity {
		ent := c.evictList.Back()
		if ent == nil {
			break
		}
		c.removeElement(ent)
	}

	if !c.rc.TryAcquireMemory(cost) {
		return
	}

	element := c.evictList.PushFront(&entry{key: key, value: value, cost: cost})
	c.items[key] = element
	c.size += cost
}

// Remove drops key from the cache.
func (c *PageCache) Remove(key uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.removeElement(ent)
	}
}

// Invalidate removes entries matching the predicate.
func (c *PageCache) Invalidate(predicate func(key uint64) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*list.Element
	for key, element := range c.items {
		if predicate(key) {
			toRemove = append(toRemove, element)
		}
	}
	for _, e := range toRemove {
		c.removeElement(e)
	}
}

// Size returns the summed cost of resident entries in bytes.
func (c *PageCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Stats returns hit and miss counters.
func (c *PageCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *PageCache) evict() {
	for c.size > c.capacity {
		element := c.evictList.Back()
		if element == nil {
			break
		}
		c.removeElement(element)
	}
}

func (c *PageCache) removeElement(e *list.Element) {
	c.evictList.Remove(e)
	ent := e.Value.(*entry)
	delete(c.items, ent.key)
	c.size -= ent.cost
	c.rc.ReleaseMemory(ent.cost)
}
