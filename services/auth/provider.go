package auth

import (
	"github.com/tech-arch1tect/rentid/config"
	"github.com/tech-arch1tect/rentid/metrics"
	"github.com/tech-arch1tect/rentid/services/jwt"
	"github.com/tech-arch1tect/rentid/services/logging"
	"github.com/tech-arch1tect/rentid/services/mail"
	"github.com/tech-arch1tect/rentid/services/mailqueue"
	"github.com/tech-arch1tect/rentid/services/password"
	"github.com/tech-arch1tect/rentid/services/users"
	"github.com/tech-arch1tect/rentid/services/verification"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Config    *config.Config
	DB        *gorm.DB
	Users     *users.Repository
	Records   *verification.Store
	Gate      *verification.CooldownGate
	Passwords *password.Service
	Mailer    *mail.Mailer
	Sessions  *jwt.Service
	Logger    *logging.Service

	Queue    mailqueue.Queue       `optional:"true"`
	Reserver verification.Reserver `optional:"true"`
	Metrics  *metrics.Metrics      `optional:"true"`
}

func ProvideAuthService(p Params) *Service {
	service := NewService(Dependencies{
		DB:        p.DB,
		Users:     p.Users,
		Records:   p.Records,
		Gate:      p.Gate,
		Passwords: p.Passwords,
		Mailer:    p.Mailer,
		Sessions:  p.Sessions,

		CodeLength: p.Config.Verification.CodeLength,
	}, p.Logger.Named("auth"))

	service.SetQueue(p.Queue)
	service.SetReserver(p.Reserver)
	service.SetMetrics(p.Metrics)
	return service
}

var Module = fx.Options(
	fx.Provide(ProvideAuthService),
)
