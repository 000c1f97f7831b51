package ratelimit

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/tech-arch1tect/rentid/config"
	"github.com/tech-arch1tect/rentid/services/logging"
	"go.uber.org/fx"
)

type StoreParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
	Logger    *logging.Service
	Redis     *redis.Client `optional:"true"`
}

func ProvideRateLimitStore(p StoreParams) Store {
	return NewStore(&p.Config.RateLimit, &p.Config.Redis, p.Redis, p.Lifecycle, p.Logger)
}

func NewStore(rateLimitConfig *config.RateLimitConfig, redisConfig *config.RedisConfig, client *redis.Client, lc fx.Lifecycle, logger *logging.Service) Store {
	if rateLimitConfig.Store == "redis" {
		if client != nil {
			return NewRedisStore(client, redisConfig.KeyPrefix)
		}
		if logger != nil {
			logger.Warn("redis rate limit store requested but no redis client is configured, using memory")
		}
	}

	store := NewMemoryStore()
	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				store.Close()
				return nil
			},
		})
	}
	return store
}

var Module = fx.Options(
	fx.Provide(ProvideRateLimitStore),
)
