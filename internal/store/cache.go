package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"pricepatrol/internal/types"
)

// RedisCache remembers recent price checks in Redis with a TTL matching the
// lookback window.
type RedisCache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisCache parses redisURL and verifies connectivity.
func NewRedisCache(ctx context.Context, redisURL string, logger *slog.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisCache{
		client: client,
		logger: logger.With("component", "price_cache"),
	}, nil
}

// PriceKey folds a product name and its store scope into a stable cache
// key. Alerts watching different store sets never share an entry.
func PriceKey(productName string, stores []string) string {
	folded := strings.Join(strings.Fields(strings.ToLower(productName)), " ")
	scope := make([]string, len(stores))
	for i, s := range stores {
		scope[i] = strings.ToLower(strings.TrimSpace(s))
	}
	sort.Strings(scope)
	return "price:" + folded + "|" + strings.Join(scope, ",")
}

func (c *RedisCache) GetPrice(ctx context.Context, key string) (*CachedPrice, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, types.ErrCacheMiss
	}
	if err != nil {
		return nil, &types.StoreError{Op: "cache get", Err: err}
	}
	var cached CachedPrice
	if err := json.Unmarshal(raw, &cached); err != nil {
		// Stale or corrupt entry; treat as a miss.
		c.logger.Warn("dropping undecodable cache entry", "key", key, "error", err)
		return nil, types.ErrCacheMiss
	}
	return &cached, nil
}

func (c *RedisCache) SetPrice(ctx context.Context, key string, price CachedPrice, ttl time.Duration) error {
	raw, err := json.Marshal(price)
	if err != nil {
		return &types.StoreError{Op: "cache encode", Err: err}
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return &types.StoreError{Op: "cache set", Err: err}
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
