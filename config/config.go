package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App          AppConfig          `envPrefix:"APP_"`
	Server       ServerConfig       `envPrefix:"SERVER_"`
	Log          LogConfig          `envPrefix:"LOG_"`
	Database     DatabaseConfig     `envPrefix:"DATABASE_"`
	Auth         AuthConfig         `envPrefix:"AUTH_"`
	Verification VerificationConfig `envPrefix:"VERIFICATION_"`
	JWT          JWTConfig          `envPrefix:"JWT_"`
	Revocation   RevocationConfig   `envPrefix:"REVOCATION_"`
	Mail         MailConfig         `envPrefix:"MAIL_"`
	MailQueue    MailQueueConfig    `envPrefix:"MAIL_QUEUE_"`
	Redis        RedisConfig        `envPrefix:"REDIS_"`
	NATS         NATSConfig         `envPrefix:"NATS_"`
	RateLimit    RateLimitConfig    `envPrefix:"RATE_LIMIT_"`
	Maintenance  MaintenanceConfig  `envPrefix:"MAINTENANCE_"`
	Metrics      MetricsConfig      `envPrefix:"METRICS_"`
}

type AppConfig struct {
	Name    string `env:"NAME" envDefault:"rentid"`
	Version string `env:"VERSION" envDefault:"1.0.0"`
	URL     string `env:"URL" envDefault:"http://localhost:8080"`
	Env     string `env:"ENV" envDefault:"production"`
	Debug   bool   `env:"DEBUG" envDefault:"false"`
}

type ServerConfig struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	Host           string   `env:"HOST" envDefault:"localhost"`
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	Output string `env:"OUTPUT" envDefault:"stdout"`
}

type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"rentid.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
	LogQueries  bool   `env:"LOG_QUERIES" envDefault:"false"`
}

type AuthConfig struct {
	MinLength      int  `env:"MIN_LENGTH" envDefault:"8"`
	RequireUpper   bool `env:"REQUIRE_UPPER" envDefault:"false"`
	RequireLower   bool `env:"REQUIRE_LOWER" envDefault:"false"`
	RequireNumber  bool `env:"REQUIRE_NUMBER" envDefault:"false"`
	RequireSpecial bool `env:"REQUIRE_SPECIAL" envDefault:"false"`
	BcryptCost     int  `env:"BCRYPT_COST" envDefault:"10"`
}

type VerificationConfig struct {
	CodeLength        int           `env:"CODE_LENGTH" envDefault:"6"`
	TokenBytes        int           `env:"TOKEN_BYTES" envDefault:"32"`
	TTL               time.Duration `env:"TTL" envDefault:"10m"`
	Cooldown          time.Duration `env:"COOLDOWN" envDefault:"60s"`
	IssueAttempts     int           `env:"ISSUE_ATTEMPTS" envDefault:"3"`
	PendingPurgeAfter time.Duration `env:"PENDING_PURGE_AFTER" envDefault:"168h"`
	ReservationStore  string        `env:"RESERVATION_STORE" envDefault:"none"`
}

type JWTConfig struct {
	SecretKey      string        `env:"SECRET_KEY"`
	Algorithm      string        `env:"ALGORITHM" envDefault:"HS256"`
	AccessExpiry   time.Duration `env:"ACCESS_EXPIRY" envDefault:"1h"`
	RememberExpiry time.Duration `env:"REMEMBER_EXPIRY" envDefault:"720h"`
	Issuer         string        `env:"ISSUER" envDefault:"rentid"`
}

type RevocationConfig struct {
	Enabled       bool          `env:"ENABLED" envDefault:"true"`
	Store         string        `env:"STORE" envDefault:"database"`
	CleanupPeriod time.Duration `env:"CLEANUP_PERIOD" envDefault:"1h"`
}

type MailConfig struct {
	Host         string `env:"HOST" envDefault:"localhost"`
	Port         int    `env:"PORT" envDefault:"1025"`
	Username     string `env:"USERNAME"`
	Password     string `env:"PASSWORD"`
	Encryption   string `env:"ENCRYPTION" envDefault:"none"`
	FromAddress  string `env:"FROM_ADDRESS" envDefault:"no-reply@rentid.local"`
	FromName     string `env:"FROM_NAME" envDefault:"rentid"`
	TemplatesDir string `env:"TEMPLATES_DIR"`
}

type MailQueueConfig struct {
	Enabled        bool          `env:"ENABLED" envDefault:"false"`
	Backend        string        `env:"BACKEND" envDefault:"memory"`
	Workers        int           `env:"WORKERS" envDefault:"2"`
	BufferSize     int           `env:"BUFFER_SIZE" envDefault:"256"`
	MaxAttempts    int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	AttemptTimeout time.Duration `env:"ATTEMPT_TIMEOUT" envDefault:"60s"`
	Backoff        time.Duration `env:"BACKOFF" envDefault:"5s"`
}

type RedisConfig struct {
	URL       string `env:"URL" envDefault:"redis://localhost:6379/0"`
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"rentid"`
}

type NATSConfig struct {
	URL     string `env:"URL" envDefault:"nats://localhost:4222"`
	Stream  string `env:"STREAM" envDefault:"RENTID_MAIL"`
	Subject string `env:"SUBJECT" envDefault:"rentid.mail.dispatch"`
	Durable string `env:"DURABLE" envDefault:"rentid-mailer"`
}

type CountingMode string

const (
	CountAll      CountingMode = "all"
	CountFailures CountingMode = "failures"
	CountSuccess  CountingMode = "success"
)

type RateLimitConfig struct {
	Enabled   bool          `env:"ENABLED" envDefault:"true"`
	Store     string        `env:"STORE" envDefault:"memory"`
	Rate      int           `env:"RATE" envDefault:"30"`
	Period    time.Duration `env:"PERIOD" envDefault:"1m"`
	CountMode CountingMode  `env:"COUNT_MODE" envDefault:"all"`
}

type MaintenanceConfig struct {
	Enabled         bool          `env:"ENABLED" envDefault:"true"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"24h"`
	PurgeInterval   time.Duration `env:"PURGE_INTERVAL" envDefault:"168h"`
}

type MetricsConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"true"`
	Path    string `env:"PATH" envDefault:"/metrics"`
}

func LoadConfig(cfg any) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	if err := env.Parse(cfg); err != nil {
		return err
	}

	if c, ok := cfg.(*Config); ok {
		return c.Validate()
	}
	return nil
}
