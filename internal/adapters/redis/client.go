// Package redis stores transactions in Redis so several bridge instances
// can share reconciliation state with key expiry as a safety net.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ClientConfig holds connection settings
type ClientConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects and pings; the caller owns Close
func NewClient(ctx context.Context, cfg ClientConfig, logger *zap.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("Redis connected",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
	)
	return client, nil
}
