// ABOUTME: Thread-safe TTL cache of idempotency keys and the results they produced
// ABOUTME: Lets retried data submissions return the first result instead of recording twice

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// State describes what the cache knows about a key.
type State int

const (
	// Unseen means the key is new (or expired) and has now been claimed.
	Unseen State = iota
	// Pending means another request holding the key has not finished yet.
	Pending
	// Done means a request with the key finished; its result is returned.
	Done
)

type cacheEntry struct {
	timestamp time.Time
	element   *list.Element
	result    any
	done      bool
}

// Cache is a TTL-based, size-limited map from idempotency keys to results.
// A doubly-linked list keeps insertion order for O(1) eviction.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*cacheEntry
	order   *list.List // keys, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache with the given TTL and maximum size. A background
// goroutine periodically removes expired entries until Close is called.
func New(ttl time.Duration, maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 1
	}
	c := &Cache{
		seen:    make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Claim atomically looks a key up and claims it if it is new. For Done keys
// the stored result is returned.
func (c *Cache) Claim(key string) (State, any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.seen[key]; ok && c.now().Sub(entry.timestamp) < c.ttl {
		if entry.done {
			return Done, entry.result
		}
		return Pending, nil
	}
	c.insertLocked(key)
	return Unseen, nil
}

// Complete stores the result of a claimed key. Later claims within the TTL
// receive it.
func (c *Cache) Complete(key string, result any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.seen[key]
	if !ok {
		entry = c.insertLocked(key)
	}
	entry.result = result
	entry.done = true
	entry.timestamp = c.now()
	c.order.MoveToBack(entry.element)
}

// Release drops a claimed key so a retry can run again, e.g. after a failure.
func (c *Cache) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.seen[key]; ok {
		c.order.Remove(entry.element)
		delete(c.seen, key)
	}
}

// Len returns the number of entries, expired ones included until cleanup.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// insertLocked adds or resets a pending entry, evicting the oldest entry at
// capacity. Must be called with mu held.
func (c *Cache) insertLocked(key string) *cacheEntry {
	if entry, ok := c.seen[key]; ok {
		entry.timestamp = c.now()
		entry.result = nil
		entry.done = false
		c.order.MoveToBack(entry.element)
		return entry
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}
	entry := &cacheEntry{
		timestamp: c.now(),
		element:   c.order.PushBack(key),
	}
	c.seen[key] = entry
	return entry
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

func (c *Cache) cleanup() {
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

// runCleanup removes all expired entries.
func (c *Cache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.seen {
		if now.Sub(entry.timestamp) >= c.ttl {
			c.order.Remove(entry.element)
			delete(c.seen, key)
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
