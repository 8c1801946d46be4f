package encoder

import (
	"container/list"
	"sync"
)

// TextCache is an LRU cache for text embeddings keyed by the exact text.
// Image content is never cached: tensors and blobs make poor keys and
// image-heavy workloads rarely repeat bytes.
type TextCache struct {
	capacity int
	cache    map[string]*list.Element
	lru      *list.List
	mu       sync.RWMutex
}

type cacheEntry struct {
	key   string
	value []float32
}

// NewTextCache creates a new cache with the given capacity.
func NewTextCache(capacity int) *TextCache {
	return &TextCache{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the cached embedding for key if present. A hit moves the
// entry to the front of the LRU list, so Get takes the write lock.
func (c *TextCache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).value, true
	}
	return nil, false
}

// Set stores the embedding for key, evicting the oldest entry if at capacity.
func (c *TextCache) Set(key string, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).value = value
		return
	}

	entry := &cacheEntry{key: key, value: value}
	elem := c.lru.PushFront(entry)
	c.cache[key] = elem

	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.cache, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Len returns the number of cached entries.
func (c *TextCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}
