package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/tech-arch1tect/rentid/config"
	"github.com/tech-arch1tect/rentid/metrics"
	"github.com/tech-arch1tect/rentid/services/logging"
	"github.com/tech-arch1tect/rentid/services/revocation"
	"github.com/tech-arch1tect/rentid/services/users"
	"github.com/tech-arch1tect/rentid/services/verification"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In
	Config     *config.Config
	DB         *gorm.DB
	Users      *users.Repository
	Records    *verification.Store
	Logger     *logging.Service
	Revocation *revocation.Service `optional:"true"`
	Metrics    *metrics.Metrics    `optional:"true"`
}

func ProvideService(p Params) *Service {
	svc := NewService(p.DB, p.Users, p.Records, p.Config.Verification.PendingPurgeAfter, p.Logger.Named("maintenance"))
	svc.SetRevocation(p.Revocation)
	svc.SetMetrics(p.Metrics)
	return svc
}

func StartWorkers(lc fx.Lifecycle, cfg *config.Config, svc *Service, logger *logging.Service) {
	if !cfg.Maintenance.Enabled {
		if logger != nil {
			logger.Debug("maintenance workers disabled in configuration")
		}
		return
	}

	schedule := map[string]time.Duration{
		TaskCleanup: cfg.Maintenance.CleanupInterval,
		TaskPurge:   cfg.Maintenance.PurgeInterval,
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			for task, interval := range schedule {
				wg.Add(1)
				go func(task string, interval time.Duration) {
					defer wg.Done()
					svc.Run(ctx, task, interval)
				}(task, interval)
				if logger != nil {
					logger.Info("started maintenance worker", zap.String("task", task), zap.Duration("interval", interval))
				}
			}
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

var Module = fx.Options(
	fx.Provide(ProvideService),
	fx.Invoke(StartWorkers),
)
