package billing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const shopCachePrefix = "biypod:shop:"

// CachedProvider decorates a Provider with a Redis cache for QueryShop.
// Charge operations always reach the provider. Cache faults are logged and
// fall through to the provider.
type CachedProvider struct {
	Provider
	rdb redis.UniversalClient
	ttl time.Duration
	log *slog.Logger
}

// NewCachedProvider wraps p. A nil rdb or non-positive ttl disables caching.
func NewCachedProvider(p Provider, rdb redis.UniversalClient, ttl time.Duration, log *slog.Logger) *CachedProvider {
	if p == nil {
		panic("billing: Provider is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &CachedProvider{Provider: p, rdb: rdb, ttl: ttl, log: log}
}

// QueryShop serves shop info from Redis when present.
func (c *CachedProvider) QueryShop(ctx context.Context, shop string) (*ShopInfo, error) {
	if c.rdb == nil || c.ttl <= 0 {
		return c.Provider.QueryShop(ctx, shop)
	}

	key := shopCachePrefix + shop
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var info ShopInfo
		if jsonErr := json.Unmarshal(raw, &info); jsonErr == nil {
			return &info, nil
		}
		c.log.WarnContext(ctx, "discarding malformed shop cache entry", slog.String("shop", shop))
	case !errors.Is(err, redis.Nil):
		c.log.WarnContext(ctx, "shop cache read failed", slog.String("shop", shop), slog.Any("error", err))
	}

	info, err := c.Provider.QueryShop(ctx, shop)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(info); err == nil {
		if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.log.WarnContext(ctx, "shop cache write failed", slog.String("shop", shop), slog.Any("error", err))
		}
	}
	return info, nil
}

// Forget drops the cached shop info, e.g. after the app is uninstalled.
func (c *CachedProvider) Forget(ctx context.Context, shop string) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, shopCachePrefix+shop).Err()
}
