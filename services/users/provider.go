package users

import (
	"github.com/tech-arch1tect/rentid/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideRepository(db *gorm.DB, logger *logging.Service) *Repository {
	return NewRepository(db, logger.Named("users"))
}

var Module = fx.Options(
	fx.Provide(ProvideRepository),
)
