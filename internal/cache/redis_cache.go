package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions holds the connection settings for the stats cache.
type RedisOptions struct {
	Address  string
	Password string
	DB       int
}

type RedisStatsCache struct {
	client *redis.Client
	prefix string
}

func NewRedisStatsCache(opts RedisOptions, prefix string) (*RedisStatsCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStatsCache{
		client: client,
		prefix: prefix,
	}, nil
}

func (c *RedisStatsCache) buildKey(accountID string) string {
	return fmt.Sprintf("%s:stats:%s", c.prefix, accountID)
}

func (c *RedisStatsCache) Get(ctx context.Context, accountID string) (*FanStats, error) {
	data, err := c.client.Get(ctx, c.buildKey(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var stats FanStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}

	return &stats, nil
}

func (c *RedisStatsCache) Set(ctx context.Context, stats *FanStats, ttl time.Duration) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	if err := c.client.Set(ctx, c.buildKey(stats.AccountID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}

	return nil
}

func (c *RedisStatsCache) Invalidate(ctx context.Context, accountIDs ...string) error {
	if len(accountIDs) == 0 {
		return nil
	}

	keys := make([]string, 0, len(accountIDs))
	for _, id := range accountIDs {
		keys = append(keys, c.buildKey(id))
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}

	return nil
}

func (c *RedisStatsCache) Close() error {
	return c.client.Close()
}

var _ StatsCache = (*RedisStatsCache)(nil)
