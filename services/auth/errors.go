package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tech-arch1tect/rentid/services/verification"
)

var (
	ErrInvalidOrExpired   = errors.New("invalid or expired verification code")
	ErrAlreadyVerified    = errors.New("email address is already verified")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoChange           = errors.New("new password must be different from the current password")
	ErrMailDispatch       = errors.New("failed to send email")
	ErrInternal           = errors.New("internal error")
	ErrIdentityNotFound   = errors.New("user not found")
	ErrEmailNotVerified   = errors.New("email address has not been verified")
	ErrAccountInactive    = errors.New("account is not active")

	ErrGeneration = verification.ErrGeneration
)

// RateLimitedError is returned while the cooldown window for a subject is open.
type RateLimitedError struct {
	Remaining int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("please wait %d seconds before requesting a new code", e.Remaining)
}

// ValidationError carries one message per offending input field.
type ValidationError struct {
	Fields map[string]string
}

func newValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

func (e *ValidationError) Add(field, message string) {
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

func internalError(err error) error {
	return fmt.Errorf("%w: %w", ErrInternal, err)
}
