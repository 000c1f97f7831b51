package openapi

import (
	"github.com/tech-arch1tect/rentid/config"
	"go.uber.org/fx"
)

const BearerScheme = "bearerAuth"

func ProvideDocument(cfg *config.Config) *Document {
	return New(cfg.App.Name+" API", cfg.App.Version).
		Description("Registration, email verification, password recovery and session management.").
		Server(cfg.App.URL, cfg.App.Env).
		BearerAuth(BearerScheme, "Session token issued by login or email verification")
}

var Module = fx.Options(
	fx.Provide(ProvideDocument),
)
