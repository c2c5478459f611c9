package cache

import (
	"context"
	"sync"
	"time"

	"github.com/shubhsaxena/catalog-search/internal/models"
	"github.com/shubhsaxena/catalog-search/internal/observability"
)

type memoryEntry struct {
	result    *models.SearchResult
	expiresAt time.Time
}

// MemoryCache is a process-local Store. Entries expire lazily: an expired
// entry is removed by the Get that finds it and nothing sweeps the map.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) (*models.SearchResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		observability.CacheMisses.WithLabelValues("memory").Inc()
		return nil, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		observability.CacheMisses.WithLabelValues("memory").Inc()
		return nil, false, nil
	}

	observability.CacheHits.WithLabelValues("memory").Inc()
	return entry.result.Clone(), true, nil
}

func (c *MemoryCache) Save(_ context.Context, key string, result *models.SearchResult) error {
	if result == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{
		result:    result.Clone(),
		expiresAt: c.now().Add(c.ttl),
	}
	return nil
}

func (c *MemoryCache) Purge(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryEntry)
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) Close() error {
	return nil
}
