package password

import (
	"github.com/tech-arch1tect/rentid/config"
	"github.com/tech-arch1tect/rentid/services/logging"
	"go.uber.org/fx"
)

func ProvideService(cfg *config.Config, logger *logging.Service) *Service {
	return NewService(cfg, logger.Named("password"))
}

var Module = fx.Options(
	fx.Provide(ProvideService),
)
