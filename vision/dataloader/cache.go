package dataloader

import (
	"container/list"
	"fmt"
	"sync"
	"sync/atomic"
)

// Item is a decoded, mean-subtracted image with its label
type Item struct {
	Image []float64
	Label int
}

type cacheEntry struct {
	key  string
	item Item
}

// CacheManager keeps the most recently used decoded records, keyed by
// record key. Cached images are shared between readers and must not be
// modified.
type CacheManager struct {
	limit int

	mu      sync.Mutex
	entries map[string]*list.Element // values are *cacheEntry
	recency *list.List               // front is most recent

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCacheManager creates a cache holding at most limit items. A limit of
// zero or less disables caching.
func NewCacheManager(limit int) *CacheManager {
	return &CacheManager{
		limit:   limit,
		entries: make(map[string]*list.Element),
		recency: list.New(),
	}
}

// Get returns the item stored under key
func (cm *CacheManager) Get(key string) (Item, bool) {
	cm.mu.Lock()
	elem, ok := cm.entries[key]
	if ok {
		cm.recency.MoveToFront(elem)
	}
	cm.mu.Unlock()

	if !ok {
		cm.misses.Add(1)
		return Item{}, false
	}
	cm.hits.Add(1)
	return elem.Value.(*cacheEntry).item, true
}

// Put stores item under key unless the key is already cached, evicting
// the least recently used entries past the limit.
func (cm *CacheManager) Put(key string, item Item) {
	if cm.limit <= 0 {
		return
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if elem, ok := cm.entries[key]; ok {
		cm.recency.MoveToFront(elem)
		return
	}
	cm.entries[key] = cm.recency.PushFront(&cacheEntry{key: key, item: item})

	for cm.recency.Len() > cm.limit {
		oldest := cm.recency.Back()
		cm.recency.Remove(oldest)
		delete(cm.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Len returns the number of cached items
func (cm *CacheManager) Len() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.recency.Len()
}

// Stats returns cache statistics
func (cm *CacheManager) Stats() CacheStats {
	stats := CacheStats{
		Size:    cm.Len(),
		MaxSize: cm.limit,
		Hits:    cm.hits.Load(),
		Misses:  cm.misses.Load(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}
	return stats
}

// Clear drops every cached item. Statistics are cumulative and survive.
func (cm *CacheManager) Clear() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	clear(cm.entries)
	cm.recency.Init()
}

// ResetStats zeroes the hit and miss counters
func (cm *CacheManager) ResetStats() {
	cm.hits.Store(0)
	cm.misses.Store(0)
}

// CacheStats holds cache statistics
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    int64
	Misses  int64
	HitRate float64 // percent
}

func (cs CacheStats) String() string {
	return fmt.Sprintf("Cache: %d/%d items, Hits: %d, Misses: %d, Hit Rate: %.1f%%",
		cs.Size, cs.MaxSize, cs.Hits, cs.Misses, cs.HitRate)
}
