package config

import (
	"errors"
	"fmt"
	"strings"
)

var weakSecretPatterns = []string{"password", "secret", "test", "example", "default", "change"}

func (c *Config) Validate() error {
	if err := validateJWTConfig(&c.JWT); err != nil {
		return err
	}
	if err := validateDatabaseConfig(&c.Database); err != nil {
		return err
	}
	if err := validateVerificationConfig(&c.Verification); err != nil {
		return err
	}
	if err := validateRevocationConfig(&c.Revocation); err != nil {
		return err
	}
	if err := validateMailQueueConfig(&c.MailQueue); err != nil {
		return err
	}
	return validateRateLimitConfig(&c.RateLimit)
}

func validateJWTConfig(cfg *JWTConfig) error {
	if len(cfg.SecretKey) < 32 {
		return errors.New("JWT secret key must be at least 32 characters long")
	}

	lower := strings.ToLower(cfg.SecretKey)
	for _, pattern := range weakSecretPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("JWT secret key contains weak patterns (%s)", pattern)
		}
	}

	if cfg.Algorithm != "" && cfg.Algorithm != "HS256" {
		return fmt.Errorf("unsupported JWT algorithm: %s (supported: HS256)", cfg.Algorithm)
	}

	if cfg.AccessExpiry <= 0 || cfg.RememberExpiry <= 0 {
		return errors.New("JWT access and remember expiry must be positive")
	}
	if cfg.RememberExpiry < cfg.AccessExpiry {
		return errors.New("JWT remember expiry cannot be shorter than access expiry")
	}
	return nil
}

func validateDatabaseConfig(cfg *DatabaseConfig) error {
	switch cfg.Driver {
	case "sqlite", "postgres", "postgresql", "mysql":
		return nil
	default:
		return fmt.Errorf("unsupported database driver: %s (supported: sqlite, postgres, mysql)", cfg.Driver)
	}
}

func validateVerificationConfig(cfg *VerificationConfig) error {
	if cfg.CodeLength < 4 || cfg.CodeLength > 10 {
		return errors.New("verification code length must be between 4 and 10 digits")
	}
	if cfg.TokenBytes < 16 {
		return errors.New("verification token must carry at least 16 random bytes")
	}
	if cfg.TTL <= 0 {
		return errors.New("verification ttl must be positive")
	}
	if cfg.Cooldown < 0 {
		return errors.New("verification cooldown cannot be negative")
	}
	if cfg.IssueAttempts < 1 {
		return errors.New("verification issue attempts must be at least 1")
	}
	switch cfg.ReservationStore {
	case "", "none", "redis":
	default:
		return fmt.Errorf("verification reservation store must be: none or redis (got %s)", cfg.ReservationStore)
	}
	return nil
}

func validateRevocationConfig(cfg *RevocationConfig) error {
	if !cfg.Enabled {
		return nil
	}
	switch cfg.Store {
	case "database", "redis":
		return nil
	default:
		return fmt.Errorf("revocation store must be: database or redis (got %s)", cfg.Store)
	}
}

func validateMailQueueConfig(cfg *MailQueueConfig) error {
	if !cfg.Enabled {
		return nil
	}
	switch cfg.Backend {
	case "memory", "nats":
	default:
		return fmt.Errorf("mail queue backend must be: memory or nats (got %s)", cfg.Backend)
	}
	if cfg.MaxAttempts < 1 {
		return errors.New("mail queue max attempts must be at least 1")
	}
	if cfg.Workers < 1 {
		return errors.New("mail queue workers must be at least 1")
	}
	return nil
}

func validateRateLimitConfig(cfg *RateLimitConfig) error {
	switch cfg.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("rate limit store must be: memory or redis (got %s)", cfg.Store)
	}
	switch cfg.CountMode {
	case CountAll, CountFailures, CountSuccess:
	default:
		return fmt.Errorf("rate limit count mode must be: all, failures, or success (got %s)", cfg.CountMode)
	}
	return nil
}
