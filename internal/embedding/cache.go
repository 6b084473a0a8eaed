package embedding

import (
	"container/list"
	"sync"
)

// CacheStats reports in-memory cache effectiveness.
type CacheStats struct {
	Entries  int    `json:"entries"`
	Capacity int    `json:"capacity"`
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
}

// HitRate returns hits / lookups, or 0 before the first lookup.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// EmbeddingCache is an LRU of embeddings keyed by input text. Segment contents and
// repeated search queries are the common hits.
type EmbeddingCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
	hits     uint64
	misses   uint64
}

type cachedVector struct {
	text string
	vec  []float32
}

// NewEmbeddingCache creates a cache holding at most capacity vectors.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &EmbeddingCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get returns the vector cached for text. A hit marks the entry as recently used,
// so Get takes the exclusive lock.
func (c *EmbeddingCache) Get(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[text]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToFront(elem)
	return elem.Value.(*cachedVector).vec, true
}

// Set caches vec for text and evicts the least recently used entry when full.
func (c *EmbeddingCache) Set(text string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[text]; ok {
		elem.Value.(*cachedVector).vec = vec
		c.order.MoveToFront(elem)
		return
	}
	c.entries[text] = c.order.PushFront(&cachedVector{text: text, vec: vec})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cachedVector).text)
	}
}

// Len returns the number of cached entries.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a snapshot of size and hit counters.
func (c *EmbeddingCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: c.order.Len(), Capacity: c.capacity, Hits: c.hits, Misses: c.misses}
}

// Purge drops every entry. Counters are kept.
func (c *EmbeddingCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element, c.capacity)
	c.order.Init()
}
