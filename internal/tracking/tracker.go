package tracking

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shubhsaxena/catalog-search/internal/models"
)

// Tracker counts how often each optimized query is searched and keeps a
// bounded, de-duplicated history with the most recent query first.
type Tracker interface {
	Track(ctx context.Context, query string) error
	Popular(ctx context.Context, limit int) ([]models.QueryCount, error)
	History(ctx context.Context) ([]string, error)
}

type MemoryTracker struct {
	mu          sync.Mutex
	counts      map[string]int64
	history     []string
	historySize int
}

func NewMemoryTracker(historySize int) *MemoryTracker {
	if historySize <= 0 {
		historySize = 50
	}
	return &MemoryTracker{
		counts:      make(map[string]int64),
		historySize: historySize,
	}
}

func (t *MemoryTracker) Track(_ context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counts[query]++

	next := make([]string, 0, t.historySize)
	next = append(next, query)
	for _, q := range t.history {
		if len(next) == t.historySize {
			break
		}
		if q != query {
			next = append(next, q)
		}
	}
	t.history = next
	return nil
}

// Popular returns the most searched queries, ties broken alphabetically.
func (t *MemoryTracker) Popular(_ context.Context, limit int) ([]models.QueryCount, error) {
	t.mu.Lock()
	out := make([]models.QueryCount, 0, len(t.counts))
	for q, n := range t.counts {
		out = append(out, models.QueryCount{Query: q, Count: n})
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Query < out[j].Query
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *MemoryTracker) History(_ context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string{}, t.history...), nil
}
