package verification

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"
	"strings"
)

type Generator interface {
	Generate(purpose Purpose) (code string, token string, err error)
}

// CryptoGenerator draws the code and the token independently from crypto/rand,
// so neither can be derived from the other.
type CryptoGenerator struct {
	codeLength int
	tokenBytes int
	reader     io.Reader
}

func NewCryptoGenerator(codeLength, tokenBytes int) *CryptoGenerator {
	if codeLength <= 0 {
		codeLength = 6
	}
	if tokenBytes < 16 {
		tokenBytes = 32
	}
	return &CryptoGenerator{
		codeLength: codeLength,
		tokenBytes: tokenBytes,
		reader:     rand.Reader,
	}
}

func (g *CryptoGenerator) Generate(purpose Purpose) (string, string, error) {
	if !purpose.Valid() {
		return "", "", ErrUnknownPurpose
	}

	code, err := randomDigits(g.reader, g.codeLength)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	buf := make([]byte, g.tokenBytes)
	if _, err := io.ReadFull(g.reader, buf); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	return code, base64.RawURLEncoding.EncodeToString(buf), nil
}

func randomDigits(r io.Reader, n int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(r, limit)
	if err != nil {
		return "", err
	}
	s := v.String()
	return strings.Repeat("0", n-len(s)) + s, nil
}
