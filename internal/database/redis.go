package database

import (
	"context"
	"fmt"

	"github.com/bipstech/exam-portal/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewRedisClient creates a Redis client and waits until it answers a ping.
func NewRedisClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)

	ping := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	if err := withRetry(ctx, cfg.ConnectRetries, retryBackoff, log, "Redis", ping); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info().
		Str("addr", opt.Addr).
		Int("db", opt.DB).
		Int("pool_size", rdb.Options().PoolSize).
		Msg("Redis connected")

	return rdb, nil
}
