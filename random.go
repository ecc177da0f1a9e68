package auth

import (
	"crypto/rand"
	"encoding/base64"
)

const opaqueTokenBytes = 32

// NewOpaqueToken returns a cryptographically secure random token for
// sessions and one-time verification records. Predictability here would
// break the single-use and session-integrity invariants, so this must
// never be replaced with a general-purpose PRNG.
func NewOpaqueToken() (string, error) {
	raw := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// MustOpaqueToken panics when the system random source is unavailable.
// The process cannot issue credentials safely in that state.
func MustOpaqueToken() string {
	token, err := NewOpaqueToken()
	if err != nil {
		panic("auth: system random source unavailable: " + err.Error())
	}
	return token
}
