package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds configuration for the Redis connection.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// RedisBackend implements Backend with SET and LPUSH.
type RedisBackend struct {
	rdb *redis.Client
}

// NewRedisBackend connects and pings Redis so a bad address fails before any
// job is built.
func NewRedisBackend(ctx context.Context, cfg RedisConfig) (*RedisBackend, error) {
	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = 5 * time.Second
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dial,
	})

	pingCtx, cancel := context.WithTimeout(ctx, dial)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisBackend{rdb: rdb}, nil
}

// Set stores value at key.
func (b *RedisBackend) Set(ctx context.Context, key, value string) error {
	return b.rdb.Set(ctx, key, value, 0).Err()
}

// LPush prepends value to the list at key.
func (b *RedisBackend) LPush(ctx context.Context, key, value string) error {
	return b.rdb.LPush(ctx, key, value).Err()
}

// Get returns the value at key. Used to inspect submitted jobs.
func (b *RedisBackend) Get(ctx context.Context, key string) (string, error) {
	return b.rdb.Get(ctx, key).Result()
}

// Close closes the connection pool.
func (b *RedisBackend) Close() error {
	return b.rdb.Close()
}
