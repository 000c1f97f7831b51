package verification

import (
	"bytes"
	"encoding/base64"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sixDigits = regexp.MustCompile(`^[0-9]{6}$`)

func TestCryptoGenerator_Generate(t *testing.T) {
	g := NewCryptoGenerator(6, 32)

	code, token, err := g.Generate(PurposeEmailVerification)

	require.NoError(t, err)
	assert.Regexp(t, sixDigits, code)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
	assert.NotContains(t, token, "=")
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")
}

func TestCryptoGenerator_Uniqueness(t *testing.T) {
	g := NewCryptoGenerator(6, 32)
	tokens := make(map[string]bool)

	for i := 0; i < 500; i++ {
		code, token, err := g.Generate(PurposePasswordReset)
		require.NoError(t, err)
		require.Regexp(t, sixDigits, code)
		require.False(t, tokens[token], "duplicate token generated")
		tokens[token] = true
	}
}

func TestCryptoGenerator_Defaults(t *testing.T) {
	g := NewCryptoGenerator(0, 4)

	assert.Equal(t, 6, g.codeLength)
	assert.Equal(t, 32, g.tokenBytes)
}

func TestCryptoGenerator_UnknownPurpose(t *testing.T) {
	g := NewCryptoGenerator(6, 32)

	_, _, err := g.Generate(Purpose("account_deletion"))

	assert.ErrorIs(t, err, ErrUnknownPurpose)
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("entropy source unavailable")
}

func TestCryptoGenerator_EntropyFailure(t *testing.T) {
	g := NewCryptoGenerator(6, 32)
	g.reader = failingReader{}

	_, _, err := g.Generate(PurposeEmailVerification)

	assert.ErrorIs(t, err, ErrGeneration)
}

func TestRandomDigits_Padding(t *testing.T) {
	// an all-zero source yields 0, which must still render as six digits
	code, err := randomDigits(bytes.NewReader(make([]byte, 64)), 6)

	require.NoError(t, err)
	assert.Equal(t, "000000", code)
}

func TestParsePurpose(t *testing.T) {
	p, err := ParsePurpose("password_reset")
	require.NoError(t, err)
	assert.Equal(t, PurposePasswordReset, p)

	_, err = ParsePurpose("")
	assert.ErrorIs(t, err, ErrUnknownPurpose)
}
