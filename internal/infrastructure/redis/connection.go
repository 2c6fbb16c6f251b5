// Package redis provides Redis-backed implementations of the domain store
// interfaces: pending authorization requests, one-time codes, device auth
// sessions, refresh tokens, the revocation ledger and idempotency markers.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tweenim/capauth/internal/config"
	"github.com/tweenim/capauth/pkg/logger"
)

// NewClient connects to Redis and verifies connectivity with a ping.
func NewClient(cfg *config.RedisConfig, log logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Info(ctx, "redis connection established", logger.Fields{
		"addr": cfg.Addr,
		"db":   cfg.DB,
	})
	return client, nil
}
