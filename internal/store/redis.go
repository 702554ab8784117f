// internal/store/redis.go
//
// Redis-backed Guard. Lets several server instances that share a signing
// key also share the set of consumed token ids.

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "crackcode:used:"

// RedisGuard records consumed ids with SETNX and a TTL.
type RedisGuard struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisGuard wraps an existing client. An empty prefix uses the default.
func NewRedisGuard(client redis.UniversalClient, prefix string) *RedisGuard {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisGuard{client: client, prefix: prefix}
}

// DialRedis parses url, connects and pings.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return c, nil
}

func (g *RedisGuard) Consume(ctx context.Context, id string, ttl time.Duration) error {
	ok, err := g.client.SetNX(ctx, g.prefix+id, 1, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return ErrReplayed
	}
	return nil
}

func (g *RedisGuard) Consumed(ctx context.Context, id string) (bool, error) {
	n, err := g.client.Exists(ctx, g.prefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}
