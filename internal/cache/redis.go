package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shubhsaxena/catalog-search/internal/config"
	"github.com/shubhsaxena/catalog-search/internal/models"
	"github.com/shubhsaxena/catalog-search/internal/observability"
)

// NewRedisClient connects to a single node or, with several addresses, a
// cluster, and pings it once.
func NewRedisClient(cfg config.RedisConfig) (redis.UniversalClient, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New("redis: no addresses configured")
	}

	var client redis.UniversalClient
	if len(cfg.Addresses) > 1 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.Addresses,
			Password:     cfg.Password,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:         cfg.Addresses[0],
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// RedisCache shares search results across service instances. Keys are
// namespaced by prefix and hashed so arbitrary query text is safe.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration, logger *zap.Logger) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (rc *RedisCache) Get(ctx context.Context, key string) (*models.SearchResult, bool, error) {
	val, err := rc.client.Get(ctx, rc.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.CacheMisses.WithLabelValues("redis").Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var res models.SearchResult
	if err := json.Unmarshal(val, &res); err != nil {
		return nil, false, fmt.Errorf("cache unmarshal: %w", err)
	}
	if res.Records == nil {
		res.Records = []models.ProductRecord{}
	}
	observability.CacheHits.WithLabelValues("redis").Inc()
	return &res, true, nil
}

func (rc *RedisCache) Save(ctx context.Context, key string, result *models.SearchResult) error {
	if result == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	if err := rc.client.Set(ctx, rc.key(key), data, rc.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Purge deletes every cached search result under this cache's prefix. On a
// cluster every master is scanned, since SCAN only walks one node.
func (rc *RedisCache) Purge(ctx context.Context) error {
	pattern := rc.prefix + "sr:*"
	var deleted atomic.Int64

	purge := func(ctx context.Context, node redis.Cmdable) error {
		n, err := purgeKeyspace(ctx, nodeKeyspace{node}, pattern, purgeBatchSize)
		deleted.Add(int64(n))
		return err
	}

	var err error
	if cluster, ok := rc.client.(*redis.ClusterClient); ok {
		err = cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			return purge(ctx, node)
		})
	} else {
		err = purge(ctx, rc.client)
	}
	if err != nil {
		return err
	}

	rc.logger.Debug("search cache purged",
		zap.String("pattern", pattern),
		zap.Int64("deleted", deleted.Load()),
	)
	return nil
}

const purgeBatchSize = 100

// keyspace is the slice of one Redis node that Purge needs.
type keyspace interface {
	scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error)
	del(ctx context.Context, keys []string) error
}

type nodeKeyspace struct {
	node redis.Cmdable
}

func (n nodeKeyspace) scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	return n.node.Scan(ctx, cursor, match, count).Result()
}

// del issues one DEL per key in a pipeline. A multi-key DEL fails with
// CROSSSLOT when keys hash to different cluster slots.
func (n nodeKeyspace) del(ctx context.Context, keys []string) error {
	_, err := n.node.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range keys {
			pipe.Del(ctx, k)
		}
		return nil
	})
	return err
}

func purgeKeyspace(ctx context.Context, ks keyspace, pattern string, batch int) (int, error) {
	var (
		cursor  uint64
		pending []string
		deleted int
	)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := ks.del(ctx, pending); err != nil {
			return fmt.Errorf("cache purge: %w", err)
		}
		deleted += len(pending)
		pending = pending[:0]
		return nil
	}

	for {
		keys, next, err := ks.scan(ctx, cursor, pattern, int64(batch))
		if err != nil {
			return deleted, fmt.Errorf("cache scan: %w", err)
		}
		for _, k := range keys {
			pending = append(pending, k)
			if len(pending) >= batch {
				if err := flush(); err != nil {
					return deleted, err
				}
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	if err := flush(); err != nil {
		return deleted, err
	}
	return deleted, nil
}

func (rc *RedisCache) HealthCheck(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

func (rc *RedisCache) key(key string) string {
	return rc.prefix + buildResultKey(key)
}
