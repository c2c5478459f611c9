package cache

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/shubhsaxena/catalog-search/internal/models"
)

// Store holds search results for a bounded time. Get reports a miss with
// ok=false and a nil error; expired entries are never returned.
type Store interface {
	Get(ctx context.Context, key string) (*models.SearchResult, bool, error)
	Save(ctx context.Context, key string, result *models.SearchResult) error
	Purge(ctx context.Context) error
	Close() error
}

func buildResultKey(key string) string {
	return fmt.Sprintf("sr:%s", hashString(key))
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:8])
}
