package revocation

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/tech-arch1tect/rentid/config"
	"github.com/tech-arch1tect/rentid/services/jwt"
	"github.com/tech-arch1tect/rentid/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type StoreParams struct {
	fx.In
	Config *config.Config
	Logger *logging.Service
	DB     *gorm.DB      `optional:"true"`
	Redis  *redis.Client `optional:"true"`
}

func ProvideStore(p StoreParams) (Store, error) {
	if !p.Config.Revocation.Enabled {
		if p.Logger != nil {
			p.Logger.Debug("token revocation disabled in configuration")
		}
		return nil, nil
	}

	switch p.Config.Revocation.Store {
	case "database":
		if p.DB == nil {
			return nil, fmt.Errorf("revocation store %q requires a database", p.Config.Revocation.Store)
		}
		return NewDatabaseStore(p.DB), nil
	case "redis":
		if p.Redis == nil {
			return nil, fmt.Errorf("revocation store %q requires a redis client", p.Config.Revocation.Store)
		}
		return NewRedisStore(p.Redis, p.Config.Redis.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unsupported revocation store type: %s", p.Config.Revocation.Store)
	}
}

func ProvideRevocationService(store Store, logger *logging.Service) *Service {
	if store == nil {
		return nil
	}
	return NewService(store, logger.Named("revocation"))
}

func ProvideRevocationAsJWTInterface(svc *Service) jwt.RevocationService {
	if svc == nil {
		return nil
	}
	return svc
}

func StartCleanupWorker(lc fx.Lifecycle, cfg *config.Config, svc *Service, logger *logging.Service) {
	if svc == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				svc.RunCleanup(ctx, cfg.Revocation.CleanupPeriod)
			}()
			if logger != nil {
				logger.Info("started revocation cleanup worker", zap.Duration("interval", cfg.Revocation.CleanupPeriod))
			}
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

var Module = fx.Options(
	fx.Provide(ProvideStore),
	fx.Provide(ProvideRevocationService),
	fx.Provide(ProvideRevocationAsJWTInterface),
	fx.Invoke(StartCleanupWorker),
)
