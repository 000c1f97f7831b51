package mail

import (
	"github.com/tech-arch1tect/rentid/config"
	"github.com/tech-arch1tect/rentid/services/logging"
	"go.uber.org/fx"
)

func ProvideMailService(cfg *config.Config, logger *logging.Service) (*Service, error) {
	return NewService(&cfg.Mail, logger.Named("mail"))
}

func ProvideMailer(cfg *config.Config, service *Service, logger *logging.Service) *Mailer {
	return NewMailer(cfg, service, logger.Named("mailer"))
}

var Module = fx.Options(
	fx.Provide(ProvideMailService, ProvideMailer),
)
