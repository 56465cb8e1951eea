package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "triage:"

// RedisBackend stores records as plain redis strings under a fixed prefix.
type RedisBackend struct {
	rdb   *redis.Client
	limit int
}

// OpenRedis connects to the redis server at url (redis://host:port/db).
func OpenRedis(ctx context.Context, url string, limit int) (*RedisBackend, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return NewRedisBackend(rdb, limit), nil
}

// NewRedisBackend wraps an existing client.
func NewRedisBackend(rdb *redis.Client, limit int) *RedisBackend {
	return &RedisBackend{rdb: rdb, limit: limit}
}

func (r *RedisBackend) Put(ctx context.Context, key, value string) error {
	if len(value) > r.limit {
		return fmt.Errorf("redis: value for %q is %d bytes, limit %d", key, len(value), r.limit)
	}
	return r.rdb.Set(ctx, redisKeyPrefix+key, value, 0).Err()
}

func (r *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, redisKeyPrefix+key).Err()
}

func (r *RedisBackend) MaxValueSize() int { return r.limit }

func (r *RedisBackend) Close() error {
	return r.rdb.Close()
}
