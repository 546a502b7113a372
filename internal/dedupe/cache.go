// Package dedupe remembers recently archived snapshot digests so the worker
// does not re-archive a feed that has not changed.
package dedupe

import (
	"slices"
	"sync"
	"time"
)

type archived struct {
	snapshotID string
	at         time.Time
}

// Cache maps content digests to the snapshot that archived them. Entries
// expire after ttl and the oldest are dropped beyond capacity.
type Cache struct {
	mu       sync.Mutex
	byDigest map[string]archived
	// queue holds each digest once, oldest mark first.
	queue    []string
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// NewCache creates a cache holding at most capacity digests for ttl each.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		byDigest: make(map[string]archived, capacity),
		queue:    make([]string, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Seen returns the snapshot that archived digest, if that happened within
// the ttl window.
func (c *Cache) Seen(digest string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.byDigest[digest]
	if !ok || c.now().Sub(rec.at) > c.ttl {
		return "", false
	}
	return rec.snapshotID, true
}

// Mark records that snapshotID archived the content with digest. Marking a
// known digest again moves it to the back of the queue.
func (c *Cache) Mark(digest, snapshotID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byDigest[digest]; ok {
		if i := slices.Index(c.queue, digest); i >= 0 {
			c.queue = slices.Delete(c.queue, i, i+1)
		}
	}

	now := c.now()
	c.byDigest[digest] = archived{snapshotID: snapshotID, at: now}
	c.queue = append(c.queue, digest)
	c.trim(now)
}

// Len returns the number of digests currently remembered.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.byDigest)
}

func (c *Cache) trim(now time.Time) {
	cutoff := now.Add(-c.ttl)

	drop := 0
	for drop < len(c.queue) {
		oldest := c.byDigest[c.queue[drop]]
		if len(c.queue)-drop <= c.capacity && !oldest.at.Before(cutoff) {
			break
		}
		delete(c.byDigest, c.queue[drop])
		drop++
	}
	c.queue = slices.Delete(c.queue, 0, drop)
}
