package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/rentid/config"
	"github.com/tech-arch1tect/rentid/services/auth"
	"github.com/tech-arch1tect/rentid/services/logging"
	"github.com/tech-arch1tect/rentid/services/maintenance"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const stopTimeout = 30 * time.Second

type App struct {
	fx          *fx.App
	config      *config.Config
	logger      *logging.Service
	db          *gorm.DB
	auth        *auth.Service
	maintenance *maintenance.Service
	echo        *echo.Echo
}

func (a *App) Start(ctx context.Context) error {
	return a.fx.Start(ctx)
}

func (a *App) Stop(ctx context.Context) error {
	return a.fx.Stop(ctx)
}

// Run starts the application and blocks until SIGINT, SIGTERM or an fx
// shutdown request, then stops it gracefully.
func (a *App) Run() error {
	startCtx, cancel := context.WithTimeout(context.Background(), a.fx.StartTimeout())
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		return err
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	exitCode := 0
	select {
	case sig := <-signals:
		a.logger.Info("received shutdown signal, stopping gracefully", zap.String("signal", sig.String()))
	case sig := <-a.fx.Wait():
		exitCode = sig.ExitCode
		a.logger.Info("shutdown requested", zap.Int("exit_code", exitCode))
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	if err := a.Stop(stopCtx); err != nil {
		a.logger.Error("failed to stop application gracefully", zap.Error(err))
		return err
	}
	if exitCode != 0 {
		return &ExitError{Code: exitCode}
	}
	return nil
}

func (a *App) Config() *config.Config {
	return a.config
}

func (a *App) Logger() *logging.Service {
	return a.logger
}

func (a *App) DB() *gorm.DB {
	return a.db
}

func (a *App) Auth() *auth.Service {
	return a.auth
}

func (a *App) Maintenance() *maintenance.Service {
	return a.maintenance
}

// Echo is nil when the application was built without HTTP.
func (a *App) Echo() *echo.Echo {
	return a.echo
}

type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return "application stopped with a non-zero exit code"
}
