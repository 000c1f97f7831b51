package password

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/tech-arch1tect/rentid/config"
	"github.com/tech-arch1tect/rentid/services/logging"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrHashingFailed = errors.New("failed to hash password")
	ErrMismatch      = errors.New("password does not match")
)

// PolicyError lists the rules a candidate password failed.
type PolicyError struct {
	Message string
}

func (e *PolicyError) Error() string {
	return e.Message
}

type Service struct {
	policy config.AuthConfig
	logger *logging.Service
}

func NewService(cfg *config.Config, logger *logging.Service) *Service {
	policy := cfg.Auth
	if policy.BcryptCost < bcrypt.MinCost || policy.BcryptCost > bcrypt.MaxCost {
		policy.BcryptCost = bcrypt.DefaultCost
	}
	if policy.MinLength <= 0 {
		policy.MinLength = 8
	}
	return &Service{policy: policy, logger: logger}
}

func (s *Service) Validate(password string) error {
	if len(password) < s.policy.MinLength {
		if s.logger != nil {
			s.logger.Debug("password rejected: insufficient length",
				zap.Int("length", len(password)),
				zap.Int("min_required", s.policy.MinLength))
		}
		return &PolicyError{Message: fmt.Sprintf("password must be at least %d characters", s.policy.MinLength)}
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	var missing []string
	if s.policy.RequireUpper && !hasUpper {
		missing = append(missing, "one uppercase letter")
	}
	if s.policy.RequireLower && !hasLower {
		missing = append(missing, "one lowercase letter")
	}
	if s.policy.RequireNumber && !hasNumber {
		missing = append(missing, "one number")
	}
	if s.policy.RequireSpecial && !hasSpecial {
		missing = append(missing, "one special character")
	}

	if len(missing) > 0 {
		if s.logger != nil {
			s.logger.Debug("password rejected: missing requirements", zap.Strings("missing_requirements", missing))
		}
		return &PolicyError{Message: fmt.Sprintf("password must contain at least %s", strings.Join(missing, ", "))}
	}
	return nil
}

// Hash validates password against the policy before hashing it.
func (s *Service) Hash(password string) (string, error) {
	if err := s.Validate(password); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.policy.BcryptCost)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("password hashing failed", zap.Error(err))
		}
		return "", ErrHashingFailed
	}
	return string(hash), nil
}

func (s *Service) Verify(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrMismatch
	}
	return nil
}

func (s *Service) MustHash(password string) string {
	hash, err := s.Hash(password)
	if err != nil {
		panic(err)
	}
	return hash
}
