package mailqueue

import (
	"context"
	"fmt"

	"github.com/tech-arch1tect/rentid/config"
	"github.com/tech-arch1tect/rentid/metrics"
	"github.com/tech-arch1tect/rentid/services/logging"
	"github.com/tech-arch1tect/rentid/services/mail"
	"github.com/tech-arch1tect/rentid/services/users"
	"github.com/tech-arch1tect/rentid/services/verification"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
	Logger    *logging.Service
	Metrics   *metrics.Metrics `optional:"true"`
	Users     *users.Repository
	Records   *verification.Store
	Mailer    *mail.Mailer
}

// ProvideQueue returns nil when the queue is disabled, in which case mail is
// sent inline by the callers.
func ProvideQueue(p Params) (Queue, error) {
	cfg := p.Config.MailQueue
	if !cfg.Enabled {
		return nil, nil
	}

	logger := p.Logger.Named("mailqueue")
	dispatcher := NewDispatcher(p.Users, p.Records, p.Mailer, logger, p.Metrics)

	switch cfg.Backend {
	case "memory":
		queue := NewMemoryQueue(cfg, dispatcher.Handle, logger, p.Metrics)
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(context.Context) error {
				queue.Start()
				return nil
			},
			OnStop: queue.Stop,
		})
		return queue, nil
	case "nats":
		queue, err := NewNATSQueue(p.Config.NATS, cfg, dispatcher.Handle, logger)
		if err != nil {
			return nil, err
		}
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(context.Context) error {
				return queue.Start()
			},
			OnStop: queue.Stop,
		})
		if logger != nil {
			logger.Info("mail queue backed by nats jetstream", zap.String("url", p.Config.NATS.URL))
		}
		return queue, nil
	default:
		return nil, fmt.Errorf("unsupported mail queue backend: %s", cfg.Backend)
	}
}

var Module = fx.Options(
	fx.Provide(ProvideQueue),
)
