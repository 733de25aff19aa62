package cache

import (
	"context"
	"time"
)

// NoopStatsCache is used when redis is not configured. Every read is a
// miss, so callers always fall through to the database.
type NoopStatsCache struct{}

func NewNoopStatsCache() *NoopStatsCache { return &NoopStatsCache{} }

func (NoopStatsCache) Get(ctx context.Context, accountID string) (*FanStats, error) {
	return nil, ErrCacheMiss
}

func (NoopStatsCache) Set(ctx context.Context, stats *FanStats, ttl time.Duration) error {
	return nil
}

func (NoopStatsCache) Invalidate(ctx context.Context, accountIDs ...string) error {
	return nil
}

func (NoopStatsCache) Close() error { return nil }

var _ StatsCache = (*NoopStatsCache)(nil)
