package testutils

import (
	"time"

	"github.com/tech-arch1tect/rentid/config"
	"golang.org/x/crypto/bcrypt"
)

const TestJWTSecret = "k9V2pQ7rT4wX8zB1nM6cL3hJ5gF0dS2aQ9eR7tY4uI1oP8"

func GetTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:    "Rentid Test",
			Version: "test",
			URL:     "http://localhost:8080",
			Env:     "test",
			Debug:   false,
		},
		Server: config.ServerConfig{
			Host: "127.0.0.1",
			Port: "0",
		},
		Log: config.LogConfig{
			Level:  "debug",
			Format: "json",
			Output: "stdout",
		},
		Database: config.DatabaseConfig{
			Driver:      "sqlite",
			DSN:         ":memory:",
			AutoMigrate: true,
		},
		Auth: config.AuthConfig{
			MinLength:  8,
			BcryptCost: bcrypt.MinCost,
		},
		Verification: config.VerificationConfig{
			CodeLength:        6,
			TokenBytes:        32,
			TTL:               10 * time.Minute,
			Cooldown:          60 * time.Second,
			IssueAttempts:     3,
			PendingPurgeAfter: 7 * 24 * time.Hour,
			ReservationStore:  "none",
		},
		JWT: config.JWTConfig{
			SecretKey:      TestJWTSecret,
			Algorithm:      "HS256",
			AccessExpiry:   time.Hour,
			RememberExpiry: 720 * time.Hour,
			Issuer:         "rentid-test",
		},
		Revocation: config.RevocationConfig{
			Enabled:       true,
			Store:         "database",
			CleanupPeriod: time.Hour,
		},
		Mail: config.MailConfig{
			Host:        "localhost",
			Port:        1025,
			Encryption:  "none",
			FromAddress: "no-reply@rentid.local",
			FromName:    "Rentid",
		},
		MailQueue: config.MailQueueConfig{
			Enabled:        false,
			Backend:        "memory",
			Workers:        1,
			BufferSize:     16,
			MaxAttempts:    3,
			AttemptTimeout: time.Second,
			Backoff:        time.Millisecond,
		},
		Redis: config.RedisConfig{
			KeyPrefix: "rentid-test",
		},
		RateLimit: config.RateLimitConfig{
			Enabled:   false,
			Store:     "memory",
			Rate:      100,
			Period:    time.Minute,
			CountMode: config.CountAll,
		},
		Maintenance: config.MaintenanceConfig{
			Enabled:         false,
			CleanupInterval: 24 * time.Hour,
			PurgeInterval:   168 * time.Hour,
		},
		Metrics: config.MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

var TestPasswords = struct {
	Valid    string
	Other    string
	TooShort string
}{
	Valid:    "Password123",
	Other:    "Different456",
	TooShort: "Pass1",
}
