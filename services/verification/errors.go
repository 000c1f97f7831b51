package verification

import "errors"

var (
	ErrGeneration     = errors.New("failed to generate verification code")
	ErrUnknownPurpose = errors.New("unknown verification purpose")
	ErrRecordNotFound = errors.New("verification record not found")
)
