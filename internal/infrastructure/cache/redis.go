package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/claim-review/internal/application/port"
	"github.com/garyjia/claim-review/internal/domain/entity"
	"github.com/redis/go-redis/v9"
)

// RedisCache shares review snapshots between instances
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

var _ port.ReviewCache = (*RedisCache)(nil)

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(cfg Config) (*RedisCache, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisCache(client, cfg), nil
}

func newRedisCache(client *redis.Client, cfg Config) *RedisCache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "claim-review:review:"
	}
	return &RedisCache{client: client, ttl: ttl, prefix: prefix}
}

// Get reads and decodes a snapshot
func (c *RedisCache) Get(ctx context.Context, claimID string) (*entity.ReviewSnapshot, bool, error) {
	data, err := c.client.Get(ctx, c.key(claimID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var snap entity.ReviewSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, false, fmt.Errorf("decode review snapshot: %w", err)
	}
	return &snap, true, nil
}

// Set stores the snapshot with the configured TTL
func (c *RedisCache) Set(ctx context.Context, snapshot *entity.ReviewSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode review snapshot: %w", err)
	}
	return c.client.Set(ctx, c.key(snapshot.ClaimID), data, c.ttl).Err()
}

// Invalidate deletes the claim's snapshot
func (c *RedisCache) Invalidate(ctx context.Context, claimID string) error {
	return c.client.Del(ctx, c.key(claimID)).Err()
}

// Ping checks Redis connectivity
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) key(claimID string) string {
	return c.prefix + claimID
}
