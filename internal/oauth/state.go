package oauth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// StateBytes is the amount of randomness in a state token (256 bits).
const StateBytes = 32

// GenerateState returns a fresh base64url CSRF state token.
func GenerateState() (string, error) {
	b := make([]byte, StateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// VerifyState compares the stored state with the one returned in the
// callback. Comparison is byte-for-byte in constant time; an empty value on
// either side never matches.
func VerifyState(expected, got string) error {
	if expected == "" || got == "" {
		return ErrStateMismatch
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
		return ErrStateMismatch
	}
	return nil
}
