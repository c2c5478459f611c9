package tracking

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/shubhsaxena/catalog-search/internal/models"
)

// RedisTracker shares counters and history across instances: a sorted set
// for counts and a capped list for history.
type RedisTracker struct {
	client      redis.UniversalClient
	countsKey   string
	historyKey  string
	historySize int
}

func NewRedisTracker(client redis.UniversalClient, prefix string, historySize int) *RedisTracker {
	if historySize <= 0 {
		historySize = 50
	}
	return &RedisTracker{
		client:      client,
		countsKey:   prefix + "search:popular",
		historyKey:  prefix + "search:history",
		historySize: historySize,
	}
}

func (t *RedisTracker) Track(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	_, err := t.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZIncrBy(ctx, t.countsKey, 1, query)
		p.LRem(ctx, t.historyKey, 0, query)
		p.LPush(ctx, t.historyKey, query)
		p.LTrim(ctx, t.historyKey, 0, int64(t.historySize-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("tracking query: %w", err)
	}
	return nil
}

func (t *RedisTracker) Popular(ctx context.Context, limit int) ([]models.QueryCount, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	zs, err := t.client.ZRevRangeWithScores(ctx, t.countsKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("loading popular queries: %w", err)
	}
	out := make([]models.QueryCount, 0, len(zs))
	for _, z := range zs {
		q, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, models.QueryCount{Query: q, Count: int64(z.Score)})
	}
	return out, nil
}

func (t *RedisTracker) History(ctx context.Context) ([]string, error) {
	out, err := t.client.LRange(ctx, t.historyKey, 0, int64(t.historySize-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("loading search history: %w", err)
	}
	return out, nil
}
