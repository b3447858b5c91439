// Package dedup guards against the same intake record being submitted twice
// in a short window, for example after a double click in the wizard.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL = 10 * time.Minute

	// keyPrefix namespaces claim keys in Redis. Only the record fingerprint
	// follows it; record content is never stored.
	keyPrefix = "coffret:submission:"
)

// Guard tracks which record fingerprints were recently submitted.
type Guard interface {
	// Claim returns true if fingerprint was not claimed within the TTL and
	// marks it as claimed.
	Claim(ctx context.Context, fingerprint string) (bool, error)
	// Release forgets a claim so the same record can be submitted again.
	Release(ctx context.Context, fingerprint string) error
	Close() error
}

// RedisGuard is a Guard backed by Redis SETNX with expiry, so claims are
// shared between replicas.
type RedisGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisGuard wraps an existing client.
func NewRedisGuard(rdb *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisGuard{rdb: rdb, ttl: ttl}
}

// Open connects to the Redis instance at url and verifies it answers.
func Open(ctx context.Context, url string, ttl time.Duration) (*RedisGuard, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return NewRedisGuard(rdb, ttl), nil
}

func (g *RedisGuard) Claim(ctx context.Context, fingerprint string) (bool, error) {
	set, err := g.rdb.SetNX(ctx, keyPrefix+fingerprint, 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}
	return set, nil
}

func (g *RedisGuard) Release(ctx context.Context, fingerprint string) error {
	if err := g.rdb.Del(ctx, keyPrefix+fingerprint).Err(); err != nil {
		return fmt.Errorf("dedup DEL: %w", err)
	}
	return nil
}

func (g *RedisGuard) Close() error {
	return g.rdb.Close()
}

// Noop claims every fingerprint. It is used when no Redis URL is configured.
type Noop struct{}

func (Noop) Claim(context.Context, string) (bool, error) { return true, nil }
func (Noop) Release(context.Context, string) error       { return nil }
func (Noop) Close() error                                { return nil }
