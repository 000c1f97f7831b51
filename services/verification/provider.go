package verification

import (
	"github.com/redis/go-redis/v9"
	"github.com/tech-arch1tect/rentid/config"
	"github.com/tech-arch1tect/rentid/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Options(
	fx.Provide(
		ProvideGenerator,
		ProvideStore,
		NewCooldownGate,
		ProvideReserver,
	),
)

func ProvideGenerator(cfg *config.Config) Generator {
	return NewCryptoGenerator(cfg.Verification.CodeLength, cfg.Verification.TokenBytes)
}

func ProvideStore(cfg *config.Config, db *gorm.DB, generator Generator, logger *logging.Service) *Store {
	return NewStore(cfg, db, generator, logger.Named("verification"))
}

type OptionalRedis struct {
	fx.In
	Client *redis.Client `optional:"true"`
}

func ProvideReserver(cfg *config.Config, opt OptionalRedis, logger *logging.Service) Reserver {
	if cfg.Verification.ReservationStore != "redis" {
		return nil
	}
	if opt.Client == nil {
		if logger != nil {
			logger.Warn("redis cooldown reservations requested but no redis client is configured")
		}
		return nil
	}
	if logger != nil {
		logger.Info("redis cooldown reservations enabled", zap.String("prefix", cfg.Redis.KeyPrefix))
	}
	return NewRedisReserver(opt.Client, cfg.Redis.KeyPrefix)
}
