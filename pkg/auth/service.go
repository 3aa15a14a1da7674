package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
)

var (
	ErrMissingServiceToken = errors.New("service token not provided")
	ErrInvalidServiceToken = errors.New("invalid service token")
)

// ValidateServiceToken checks a bearer token against the configured service
// token. Both sides are hashed first so the comparison does not leak length.
// An unconfigured service token rejects everything.
func ValidateServiceToken(token, expected string) error {
	if token == "" {
		return ErrMissingServiceToken
	}
	if expected == "" {
		return ErrInvalidServiceToken
	}
	got, want := sha256.Sum256([]byte(token)), sha256.Sum256([]byte(expected))
	if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
		return ErrInvalidServiceToken
	}
	return nil
}
