package utils

import (
	"context"
	"fmt"
	"time"

	"auth-rotation/internal/config"

	"github.com/redis/go-redis/v9"
)

// OpenLimiterRedis connects to the Redis instance backing login throttling.
// The limiter issues one short script per login, so timeouts are tight: a
// slow Redis should degrade throttling rather than stall logins.
func OpenLimiterRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if !cfg.HasRedis() {
		return nil, ErrNotConfigured
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.RedisAddr(),
		DialTimeout:     2 * time.Second,
		ReadTimeout:     500 * time.Millisecond,
		WriteTimeout:    500 * time.Millisecond,
		PoolSize:        10,
		PoolTimeout:     time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr(), err)
	}
	return rdb, nil
}
