// ABOUTME: TTL cache tracking already-processed Matrix event IDs
// ABOUTME: Sync can redeliver events across reconnects; duplicates are dropped here

package matrix

import (
	"container/list"
	"sync"
	"time"
)

// seenCache is a size-limited TTL cache over event IDs. Insertion order is
// kept in a linked list so eviction of the oldest entry is O(1).
type seenCache struct {
	mu      sync.Mutex
	entries map[string]*seenEntry
	order   *list.List
	ttl     time.Duration
	maxSize int
}

type seenEntry struct {
	at      time.Time
	element *list.Element
}

func newSeenCache(ttl time.Duration, maxSize int) *seenCache {
	return &seenCache{
		entries: make(map[string]*seenEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// checkAndMark reports whether key was already seen within the TTL, marking
// it atomically when it was not.
func (c *seenCache) checkAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if e, ok := c.entries[key]; ok && now.Sub(e.at) < c.ttl {
		return true
	}

	if e, ok := c.entries[key]; ok {
		e.at = now
		c.order.MoveToBack(e.element)
		return false
	}

	if len(c.entries) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			oldest, _ := front.Value.(string)
			c.order.Remove(front)
			delete(c.entries, oldest)
		}
	}

	c.entries[key] = &seenEntry{at: now, element: c.order.PushBack(key)}
	return false
}
