// ABOUTME: Bounded TTL cache of recently seen keys with lazy expiry.
// ABOUTME: Backs push-event dedup and the client-side rapid-send guard.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Cache remembers keys for a bounded window. Expired entries are pruned
// lazily on mutation and the oldest entry is evicted at capacity, so the
// cache never grows unbounded and needs no background goroutine. Safe for
// concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // oldest at front
	ttl     time.Duration
	max     int
	now     func() time.Time
}

type entry struct {
	key     string
	expires time.Time
}

// New returns a cache that remembers keys for ttl and holds at most max
// entries.
func New(ttl time.Duration, max int) *Cache {
	return &Cache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		max:     max,
		now:     time.Now,
	}
}

// CheckAndMark atomically tests whether key was seen within the TTL and, if
// not, records it. Returns true when the key is a duplicate. The single
// lock-held test-and-insert closes the race where two copies of the same
// event arrive back-to-back.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.pruneLocked(now)

	if el, ok := c.entries[key]; ok {
		if el.Value.(*entry).expires.After(now) {
			return true
		}
		// Expired but not yet pruned: treat as unseen and refresh.
		c.removeLocked(el)
	}

	c.insertLocked(key, now)
	return false
}

// Check reports whether key was seen within the TTL, without marking it.
func (c *Cache) Check(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	return ok && el.Value.(*entry).expires.After(c.now())
}

// Mark records key as seen, refreshing its window if already present.
func (c *Cache) Mark(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.pruneLocked(now)
	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
	c.insertLocked(key, now)
}

// Len returns the number of live (unexpired) entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneLocked(c.now())
	return len(c.entries)
}

func (c *Cache) insertLocked(key string, now time.Time) {
	if len(c.entries) >= c.max {
		if front := c.order.Front(); front != nil {
			c.removeLocked(front)
		}
	}
	el := c.order.PushBack(&entry{key: key, expires: now.Add(c.ttl)})
	c.entries[key] = el
}

// pruneLocked drops entries whose window has passed. Entries expire in
// insertion order because the TTL is uniform, so pruning stops at the first
// live entry.
func (c *Cache) pruneLocked(now time.Time) {
	for {
		front := c.order.Front()
		if front == nil || front.Value.(*entry).expires.After(now) {
			return
		}
		c.removeLocked(front)
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	delete(c.entries, el.Value.(*entry).key)
	c.order.Remove(el)
}
