package handlers

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/rentid/config"
	"github.com/tech-arch1tect/rentid/metrics"
	"github.com/tech-arch1tect/rentid/middleware/ratelimit"
	"github.com/tech-arch1tect/rentid/openapi"
	"github.com/tech-arch1tect/rentid/services/auth"
	"github.com/tech-arch1tect/rentid/services/jwt"
	"github.com/tech-arch1tect/rentid/services/logging"
	"github.com/tech-arch1tect/rentid/services/maintenance"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Params struct {
	fx.In
	Config      *config.Config
	Echo        *echo.Echo
	Auth        *auth.Service
	Maintenance *maintenance.Service
	Sessions    *jwt.Service
	DB          *gorm.DB
	Logger      *logging.Service
	Store       ratelimit.Store   `optional:"true"`
	Docs        *openapi.Document `optional:"true"`
	Metrics     *metrics.Metrics  `optional:"true"`
}

func ProvideHandler(p Params) *Handler {
	h := New(p.Auth, p.Maintenance, p.Logger.Named("http"), p.Config.App.Debug)
	h.SetHealthCheck(func(ctx context.Context) error {
		sqlDB, err := p.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	return h
}

func RegisterRoutes(p Params, h *Handler) {
	p.Echo.HTTPErrorHandler = h.HTTPErrorHandler

	rc := RouteConfig{
		Sessions:    p.Sessions,
		Docs:        p.Docs,
		Metrics:     p.Metrics,
		MetricsPath: p.Config.Metrics.Path,
	}
	if p.Config.RateLimit.Enabled {
		rc.RateLimit = ratelimit.Middleware(&ratelimit.Config{
			Store:        p.Store,
			Rate:         p.Config.RateLimit.Rate,
			Period:       p.Config.RateLimit.Period,
			CountMode:    p.Config.RateLimit.CountMode,
			KeyGenerator: ratelimit.RouteKeyGenerator,
			Logger:       p.Logger.Named("ratelimit"),
		})
	}
	h.Routes(p.Echo, rc)
}

var Module = fx.Options(
	fx.Provide(ProvideHandler),
	fx.Invoke(RegisterRoutes),
)
