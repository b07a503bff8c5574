// ABOUTME: Thread-safe TTL cache for deduplicating console send requests.
// ABOUTME: Tracks request IDs so retried submissions don't start a second turn.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// entry stores the timestamp and list element for a recorded request ID.
type entry struct {
	recordedAt time.Time
	element    *list.Element
}

// Cache is a thread-safe, TTL-based, size-limited record of request IDs the
// server has already accepted. Clients retry POST /api/send on flaky networks;
// the cache keeps a retried request from starting a second streaming turn.
// A doubly-linked list maintains insertion order for O(1) eviction.
type Cache struct {
	mu      sync.RWMutex
	seen    map[string]*entry
	order   *list.List // request IDs in insertion order (oldest at front)
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a request cache with the specified TTL and maximum size.
// A background goroutine periodically removes expired entries.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Seen returns true if the request ID has been recorded and is not expired.
func (c *Cache) Seen(requestID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.seen[requestID]
	if !ok {
		return false
	}
	return time.Since(e.recordedAt) < c.ttl
}

// SeenOrRecord atomically checks whether a request ID has been recorded and
// records it if not. Returns true if the ID was already seen (duplicate),
// false if it is new and now recorded. The single lock avoids the TOCTOU
// race a separate Seen/Record pair would have.
func (c *Cache) SeenOrRecord(requestID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.seen[requestID]
	if ok && time.Since(e.recordedAt) < c.ttl {
		return true // duplicate, reject
	}

	c.recordLocked(requestID)
	return false
}

// Record marks a request ID as seen. If the cache is at capacity, the oldest
// entry is evicted to make room.
func (c *Cache) Record(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordLocked(requestID)
}

// recordLocked is the internal record implementation. Must be called with mu held.
func (c *Cache) recordLocked(requestID string) {
	now := time.Now()

	// Refresh and move to back if the ID is already present.
	if e, exists := c.seen[requestID]; exists {
		e.recordedAt = now
		c.order.MoveToBack(e.element)
		return
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(requestID)
	c.seen[requestID] = &entry{
		recordedAt: now,
		element:    elem,
	}
}

// evictOldest removes the oldest entry from the cache.
// Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	id, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, id)
}

// cleanupLoop periodically removes expired entries until Close is called.
func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired entries from the cache.
func (c *Cache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for id, e := range c.seen {
		if now.Sub(e.recordedAt) > c.ttl {
			c.order.Remove(e.element)
			delete(c.seen, id)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
