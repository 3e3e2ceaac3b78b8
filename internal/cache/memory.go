package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter"

	"github.com/rafaeljc/mimir/internal/observability"
)

// MemoryCache is the L1 tier, a bounded S3-FIFO cache from the otter library.
// Entries never expire by time; staleness is judged from Entry.Date.
type MemoryCache struct {
	store otter.Cache[string, Entry]
}

// NewMemoryCache builds an in-memory cache holding at most capacity entries.
func NewMemoryCache(capacity int) (*MemoryCache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", capacity)
	}

	store, err := otter.MustBuilder[string, Entry](capacity).
		CollectStats().
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build memory cache: %w", err)
	}

	return &MemoryCache{store: store}, nil
}

// Get returns the entry stored under key. Hits are counted on the l1 tier.
func (c *MemoryCache) Get(key string) (Entry, bool) {
	e, ok := c.store.Get(key)
	if ok {
		observability.TagInfoCacheHits.WithLabelValues("l1").Inc()
	}
	return e, ok
}

// Set stores e under key. It reports false when otter dropped the write.
func (c *MemoryCache) Set(key string, e Entry) bool {
	return c.store.Set(key, e)
}

// Del removes key.
func (c *MemoryCache) Del(key string) {
	c.store.Delete(key)
}

// Len is the number of entries currently held.
func (c *MemoryCache) Len() int {
	return c.store.Size()
}

// RunMetricsCollector publishes size, eviction and rejection figures every
// interval until ctx is done. otter reports cumulative counters, so only the
// delta since the previous tick is added.
func (c *MemoryCache) RunMetricsCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastEvicted, lastRejected int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := c.store.Stats()
			observability.TagInfoCacheItems.Set(float64(c.store.Size()))

			if evicted := stats.EvictedCount(); evicted > lastEvicted {
				observability.TagInfoCacheEvictions.Add(float64(evicted - lastEvicted))
				lastEvicted = evicted
			}
			if rejected := stats.RejectedSets(); rejected > lastRejected {
				observability.TagInfoCacheDropped.Add(float64(rejected - lastRejected))
				lastRejected = rejected
			}
		}
	}
}

// Close stops otter's background goroutines.
func (c *MemoryCache) Close() {
	c.store.Close()
}
