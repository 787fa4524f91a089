// Package cache provides the Redis-backed notification throttle.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"redblue-core/internal/config"
)

// Throttle suppresses repeat notifications per key within a TTL. The first
// call for a key wins the slot; later calls are denied until it expires. It
// implements pipeline.Throttle.
type Throttle struct {
	client *redis.Client
	ttl    time.Duration
}

// NewThrottle connects to Redis and verifies the connection.
func NewThrottle(cfg config.RedisConfig) (*Throttle, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.ThrottleTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Throttle{client: client, ttl: ttl}, nil
}

// Allow reports whether a notification for the key may go out now. SetNX
// makes the check-and-claim atomic across instances.
func (t *Throttle) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := t.client.SetNX(ctx, "throttle:"+key, 1, t.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis throttle: %w", err)
	}
	return ok, nil
}

// Close closes the Redis connection.
func (t *Throttle) Close() error {
	return t.client.Close()
}
