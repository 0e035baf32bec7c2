package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type dedupClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Close() error
}

const resetScanCount = 500

// RedisDedup claims canonical URLs with SETNX so several processes sharing a
// Redis instance never schedule the same page twice
type RedisDedup struct {
	client    dedupClient
	keyPrefix string
	ttl       time.Duration
}

// NewRedisDedup connects to Redis at addr
func NewRedisDedup(addr, password string, db int, keyPrefix string, ttl time.Duration) *RedisDedup {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisDedupWithClient(client, keyPrefix, ttl)
}

// NewRedisDedupWithClient builds a dedup store over a custom client (tests)
func NewRedisDedupWithClient(client dedupClient, keyPrefix string, ttl time.Duration) *RedisDedup {
	return &RedisDedup{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

// Claim returns true when this call was the first to claim key
func (d *RedisDedup) Claim(ctx context.Context, key string) (bool, error) {
	return d.client.SetNX(ctx, d.keyPrefix+key, "1", d.ttl).Result()
}

// Release drops the claim on key
func (d *RedisDedup) Release(ctx context.Context, key string) error {
	return d.client.Del(ctx, d.keyPrefix+key).Err()
}

// Reset drops every claim under the key prefix and returns how many were
// removed. A crawl that starts from an empty database calls it so claims
// from the previous run do not hide its seeds.
func (d *RedisDedup) Reset(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := d.client.Scan(ctx, cursor, d.keyPrefix+"*", resetScanCount).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to scan dedup keys: %w", err)
		}
		if len(keys) > 0 {
			if err := d.client.Del(ctx, keys...).Err(); err != nil {
				return removed, fmt.Errorf("failed to delete dedup keys: %w", err)
			}
			removed += len(keys)
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}

// Ping checks connectivity
func (d *RedisDedup) Ping(ctx context.Context) error {
	if pinger, ok := d.client.(interface {
		Ping(ctx context.Context) *redis.StatusCmd
	}); ok {
		return pinger.Ping(ctx).Err()
	}
	return nil
}

// Close shuts down the client
func (d *RedisDedup) Close() error {
	return d.client.Close()
}
