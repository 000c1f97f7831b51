package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/rentid/testutils"
	"golang.org/x/crypto/bcrypt"
)

func TestService_Validate(t *testing.T) {
	cfg := testutils.GetTestConfig()
	cfg.Auth.RequireUpper = true
	cfg.Auth.RequireNumber = true
	service := NewService(cfg, nil)

	tests := []struct {
		name     string
		password string
		wantErr  string
	}{
		{"valid", "Password123", ""},
		{"too short", "Pa1", "at least 8 characters"},
		{"missing upper", "password123", "one uppercase letter"},
		{"missing number and upper", "passwordonly", "one uppercase letter, one number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := service.Validate(tt.password)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var policyErr *PolicyError
			require.ErrorAs(t, err, &policyErr)
			assert.Contains(t, policyErr.Message, tt.wantErr)
		})
	}
}

func TestService_DefaultPolicy(t *testing.T) {
	service := NewService(testutils.GetTestConfig(), nil)

	assert.NoError(t, service.Validate("lowercaseonly"))
	assert.Error(t, service.Validate(testutils.TestPasswords.TooShort))
}

func TestService_HashAndVerify(t *testing.T) {
	service := NewService(testutils.GetTestConfig(), nil)

	hash, err := service.Hash(testutils.TestPasswords.Valid)
	require.NoError(t, err)
	assert.NotEqual(t, testutils.TestPasswords.Valid, hash)

	assert.NoError(t, service.Verify(hash, testutils.TestPasswords.Valid))
	assert.ErrorIs(t, service.Verify(hash, testutils.TestPasswords.Other), ErrMismatch)
	assert.ErrorIs(t, service.Verify("not-a-hash", testutils.TestPasswords.Valid), ErrMismatch)
}

func TestService_HashRejectsPolicyViolations(t *testing.T) {
	service := NewService(testutils.GetTestConfig(), nil)

	_, err := service.Hash(testutils.TestPasswords.TooShort)

	var policyErr *PolicyError
	assert.ErrorAs(t, err, &policyErr)
}

func TestService_BcryptCostClamped(t *testing.T) {
	cfg := testutils.GetTestConfig()
	cfg.Auth.BcryptCost = 99
	service := NewService(cfg, nil)

	assert.Equal(t, bcrypt.DefaultCost, service.policy.BcryptCost)
}

func TestService_MustHashPanicsOnInvalid(t *testing.T) {
	service := NewService(testutils.GetTestConfig(), nil)

	assert.Panics(t, func() { service.MustHash("x") })
	assert.NotPanics(t, func() { service.MustHash(testutils.TestPasswords.Valid) })
}
