package dataloader

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

func item(v float64) Item {
	return Item{Image: []float64{v}, Label: int(v)}
}

// TestCacheManagerBasicOperations tests basic get/put operations
func TestCacheManagerBasicOperations(t *testing.T) {
	cm := NewCacheManager(5)

	if _, exists := cm.Get("nonexistent"); exists {
		t.Error("Get should return false for nonexistent key")
	}

	cm.Put("a", item(1))
	got, exists := cm.Get("a")
	if !exists {
		t.Fatal("Expected key a to exist")
	}
	if got.Image[0] != 1 || got.Label != 1 {
		t.Errorf("Unexpected item %+v", got)
	}

	stats := cm.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Expected 1 hit and 1 miss, got %d/%d", stats.Hits, stats.Misses)
	}
	if stats.HitRate != 50 {
		t.Errorf("Expected hit rate 50, got %f", stats.HitRate)
	}
}

// TestCacheManagerLRUEviction tests that the least recently used item goes first
func TestCacheManagerLRUEviction(t *testing.T) {
	cm := NewCacheManager(3)
	for i := 0; i < 3; i++ {
		cm.Put(fmt.Sprintf("k%d", i), item(float64(i)))
	}

	// Touch k0 so k1 becomes the oldest
	cm.Get("k0")
	cm.Put("k3", item(3))

	if _, ok := cm.Get("k1"); ok {
		t.Error("Expected k1 to be evicted")
	}
	for _, key := range []string{"k0", "k2", "k3"} {
		if _, ok := cm.Get(key); !ok {
			t.Errorf("Expected %s to remain cached", key)
		}
	}
	if cm.Stats().Size != 3 {
		t.Errorf("Expected size 3, got %d", cm.Stats().Size)
	}
}

func TestCacheManagerPutExisting(t *testing.T) {
	cm := NewCacheManager(2)
	cm.Put("a", item(1))
	cm.Put("a", item(2))

	got, _ := cm.Get("a")
	if got.Image[0] != 1 {
		t.Errorf("Put on existing key should keep the first value, got %v", got.Image[0])
	}
	if cm.Stats().Size != 1 {
		t.Errorf("Expected size 1, got %d", cm.Stats().Size)
	}
}

func TestCacheManagerDisabled(t *testing.T) {
	cm := NewCacheManager(0)
	cm.Put("a", item(1))
	if _, ok := cm.Get("a"); ok {
		t.Error("Disabled cache should never hit")
	}
}

func TestCacheManagerClearAndResetStats(t *testing.T) {
	cm := NewCacheManager(4)
	cm.Put("a", item(1))
	cm.Get("a")
	cm.Clear()

	if cm.Stats().Size != 0 {
		t.Errorf("Expected empty cache after Clear")
	}
	if cm.Stats().Hits != 1 {
		t.Errorf("Clear should keep statistics")
	}

	cm.ResetStats()
	stats := cm.Stats()
	if stats.Hits != 0 || stats.Misses != 0 {
		t.Errorf("Expected zero statistics, got %+v", stats)
	}
}

func TestCacheManagerConcurrency(t *testing.T) {
	cm := NewCacheManager(50)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("k%d", (w*100+i)%80)
				if _, ok := cm.Get(key); !ok {
					cm.Put(key, item(float64(i)))
				}
			}
		}(w)
	}
	wg.Wait()

	if size := cm.Stats().Size; size > 50 {
		t.Errorf("Cache grew past its limit: %d", size)
	}
}

func TestCacheStatsString(t *testing.T) {
	s := CacheStats{Size: 2, MaxSize: 10, Hits: 3, Misses: 1, HitRate: 75}.String()
	if !strings.Contains(s, "2/10 items") || !strings.Contains(s, "75.0%") {
		t.Errorf("Unexpected stats string %q", s)
	}
}
