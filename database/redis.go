package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tech-arch1tect/rentid/config"
	"github.com/tech-arch1tect/rentid/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// RedisRequired reports whether any configured component is backed by redis.
func RedisRequired(cfg *config.Config) bool {
	return cfg.Verification.ReservationStore == "redis" ||
		cfg.RateLimit.Store == "redis" ||
		(cfg.Revocation.Enabled && cfg.Revocation.Store == "redis")
}

func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// ProvideRedisFx returns a nil client when no component needs redis.
func ProvideRedisFx(lc fx.Lifecycle, cfg *config.Config, logger *logging.Service) (*redis.Client, error) {
	if !RedisRequired(cfg) {
		return nil, nil
	}

	client, err := NewRedisClient(context.Background(), cfg.Redis)
	if err != nil {
		if logger != nil {
			logger.Error("failed to connect to redis", zap.Error(err))
		}
		return nil, err
	}
	if logger != nil {
		logger.Info("connected to redis", zap.String("addr", client.Options().Addr))
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

var RedisModule = fx.Options(
	fx.Provide(ProvideRedisFx),
)
