package server

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/rentid/config"
	"github.com/tech-arch1tect/rentid/metrics"
	"github.com/tech-arch1tect/rentid/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In
	Config  *config.Config
	Logger  *logging.Service
	Metrics *metrics.Metrics `optional:"true"`
}

func ProvideServer(p Params) *Server {
	return New(p.Config, p.Logger.Named("http"), p.Metrics)
}

func ProvideEcho(srv *Server) *echo.Echo {
	return srv.Echo()
}

func StartServer(lc fx.Lifecycle, shutdowner fx.Shutdowner, srv *Server, logger *logging.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := srv.Listen(); err != nil {
				return err
			}
			go func() {
				if err := srv.Serve(); err != nil {
					if logger != nil {
						logger.Error("http server stopped unexpectedly", zap.Error(err))
					}
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(ProvideServer, ProvideEcho),
	fx.Invoke(StartServer),
)
