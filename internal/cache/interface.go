package cache

import (
	"context"
	"errors"
	"time"
)

var ErrCacheMiss = errors.New("cache miss")

// FanStats is the cached per-account fan breakdown served by the stats
// endpoint between syncs.
type FanStats struct {
	AccountID    string `json:"account_id"`
	Subscribed   int64  `json:"subscribed"`
	Unsubscribed int64  `json:"unsubscribed"`
	Blocked      int64  `json:"blocked"`
	Total        int64  `json:"total"`
}

// StatsCache caches fan statistics per account. Sync jobs invalidate the
// entry when they change fan rows.
type StatsCache interface {
	Get(ctx context.Context, accountID string) (*FanStats, error)
	Set(ctx context.Context, stats *FanStats, ttl time.Duration) error
	Invalidate(ctx context.Context, accountIDs ...string) error
	Close() error
}
