package app

import (
	"errors"
	"fmt"

	"github.com/tech-arch1tect/rentid/config"
	"github.com/tech-arch1tect/rentid/database"
	"github.com/tech-arch1tect/rentid/handlers"
	"github.com/tech-arch1tect/rentid/metrics"
	"github.com/tech-arch1tect/rentid/middleware/ratelimit"
	"github.com/tech-arch1tect/rentid/openapi"
	"github.com/tech-arch1tect/rentid/server"
	"github.com/tech-arch1tect/rentid/services/auth"
	"github.com/tech-arch1tect/rentid/services/jwt"
	"github.com/tech-arch1tect/rentid/services/logging"
	"github.com/tech-arch1tect/rentid/services/mail"
	"github.com/tech-arch1tect/rentid/services/mailqueue"
	"github.com/tech-arch1tect/rentid/services/maintenance"
	"github.com/tech-arch1tect/rentid/services/password"
	"github.com/tech-arch1tect/rentid/services/revocation"
	"github.com/tech-arch1tect/rentid/services/users"
	"github.com/tech-arch1tect/rentid/services/verification"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
)

// Models lists every table the credential lifecycle persists.
func Models() []any {
	return []any{&users.User{}, &verification.Record{}, &revocation.RevokedToken{}}
}

// Core wires storage and every service of the credential lifecycle without
// any HTTP surface.
func Core(cfg *config.Config, models ...any) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		logging.Module,
		fx.Supply(database.WithModels(models...)),
		database.Module,
		database.RedisModule,
		metrics.Module,
		users.Module,
		verification.Module,
		password.Module,
		jwt.Options,
		revocation.Module,
		mail.Module,
		mailqueue.Module,
		auth.Module,
		maintenance.Module,
		ratelimit.Module,
	)
}

// HTTP adds the echo server, the API routes and their OpenAPI document.
var HTTP = fx.Options(
	openapi.Module,
	server.Module,
	handlers.Module,
)

type AppBuilder struct {
	config    *config.Config
	models    []any
	fxOptions []fx.Option
	http      bool
	fxLogs    bool
	errors    []error
}

func NewApp() *AppBuilder {
	return &AppBuilder{
		models: Models(),
		http:   true,
	}
}

func (b *AppBuilder) WithConfig(cfg *config.Config) *AppBuilder {
	if cfg == nil {
		b.addError("config cannot be nil")
		return b
	}
	b.config = cfg
	return b
}

func (b *AppBuilder) WithAutoConfig() *AppBuilder {
	cfg := &config.Config{}
	if err := config.LoadConfig(cfg); err != nil {
		b.addError(fmt.Sprintf("failed to load config: %v", err))
		return b
	}
	b.config = cfg
	return b
}

// WithModels migrates additional models next to the built-in ones.
func (b *AppBuilder) WithModels(models ...any) *AppBuilder {
	b.models = append(b.models, models...)
	return b
}

func (b *AppBuilder) WithoutHTTP() *AppBuilder {
	b.http = false
	return b
}

// WithFxLogs routes the fx container events through the application logger
// at debug level instead of discarding them.
func (b *AppBuilder) WithFxLogs() *AppBuilder {
	b.fxLogs = true
	return b
}

func (b *AppBuilder) WithFxOptions(opts ...fx.Option) *AppBuilder {
	b.fxOptions = append(b.fxOptions, opts...)
	return b
}

func (b *AppBuilder) Build() (*App, error) {
	if b.config == nil && len(b.errors) == 0 {
		b.WithAutoConfig()
	}
	if err := b.validate(); err != nil {
		return nil, err
	}

	app := &App{config: b.config}

	options := []fx.Option{Core(b.config, b.models...)}
	if b.fxLogs {
		options = append(options, fx.WithLogger(func(logger *logging.Service) fxevent.Logger {
			zl := &fxevent.ZapLogger{Logger: logger.Named("fx").Logger()}
			zl.UseLogLevel(zapcore.DebugLevel)
			return zl
		}))
	} else {
		options = append(options, fx.NopLogger)
	}
	if b.http {
		options = append(options, HTTP, fx.Populate(&app.echo))
	}
	options = append(options, b.fxOptions...)
	options = append(options, fx.Invoke(func(
		logger *logging.Service,
		db *gorm.DB,
		authSvc *auth.Service,
		maintenanceSvc *maintenance.Service,
	) {
		app.logger = logger
		app.db = db
		app.auth = authSvc
		app.maintenance = maintenanceSvc
	}))

	app.fx = fx.New(options...)
	if err := app.fx.Err(); err != nil {
		return nil, fmt.Errorf("failed to build application: %w", err)
	}
	return app, nil
}

func (b *AppBuilder) addError(msg string) {
	b.errors = append(b.errors, errors.New(msg))
}

func (b *AppBuilder) validate() error {
	if len(b.errors) > 0 {
		return fmt.Errorf("configuration errors: %w", errors.Join(b.errors...))
	}
	if err := b.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
