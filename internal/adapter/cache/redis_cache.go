package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agobrik/unity-sim-packs-sub006/internal/domain"
	"github.com/agobrik/unity-sim-packs-sub006/internal/port"
)

var _ port.Cache = (*RedisCache)(nil)

// RedisCache keeps the latest book snapshot per asset as JSON.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(addr string, password string, db int, ttl time.Duration) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{
		client: rdb,
		ttl:    ttl,
	}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error { return c.client.Close() }

func bookKey(assetID string) string { return "ob:" + assetID }

func (c *RedisCache) SetOrderbook(ctx context.Context, assetID string, ob *domain.OrderbookSnapshot) error {
	b, err := json.Marshal(ob)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, bookKey(assetID), b, c.ttl).Err()
}

// GetOrderbook returns nil, nil on a miss.
func (c *RedisCache) GetOrderbook(ctx context.Context, assetID string) (*domain.OrderbookSnapshot, error) {
	b, err := c.client.Get(ctx, bookKey(assetID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ob domain.OrderbookSnapshot
	if err := json.Unmarshal(b, &ob); err != nil {
		return nil, err
	}
	return &ob, nil
}

func (c *RedisCache) Invalidate(ctx context.Context, assetID string) error {
	return c.client.Del(ctx, bookKey(assetID)).Err()
}
