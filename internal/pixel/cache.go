package pixel

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is the decoded-pixel store shared by the model goroutine and the
// preload worker. It is the only object both execution contexts touch,
// so every method is safe for concurrent use; the underlying LRU is
// internally locked and never exposed.
type Cache struct {
	lru *lru.Cache[string, *Buffer]
}

// NewCache creates a cache bounded to maxEntries decoded buffers, evicted
// least-recently-used first.
func NewCache(maxEntries int) (*Cache, error) {
	c, err := lru.New[string, *Buffer](maxEntries)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

// Get returns the decoded buffer for a SOP UID, if resident.
func (c *Cache) Get(sopUID string) (*Buffer, bool) {
	return c.lru.Get(sopUID)
}

// Add stores a decoded buffer, possibly evicting the least recently used
// entry. Returns true when an eviction occurred.
func (c *Cache) Add(sopUID string, buf *Buffer) bool {
	return c.lru.Add(sopUID, buf)
}

// Contains reports residency without updating recency.
func (c *Cache) Contains(sopUID string) bool {
	return c.lru.Contains(sopUID)
}

// Remove evicts one entry.
func (c *Cache) Remove(sopUID string) {
	c.lru.Remove(sopUID)
}

// Len returns the number of resident buffers.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.lru.Purge()
}

// ResidentMask reports, per SOP UID, whether the instance is currently
// resident. Views use it to paint series-level load state.
func (c *Cache) ResidentMask(sopUIDs []string) []bool {
	mask := make([]bool, len(sopUIDs))
	for i, uid := range sopUIDs {
		mask[i] = c.lru.Contains(uid)
	}
	return mask
}
