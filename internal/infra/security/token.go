package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// ProvisioningTokenBytes is the entropy of a credential-setup token.
const ProvisioningTokenBytes = 32

// GenerateSecureToken returns a base64 URL-safe random string using the specified number of random bytes.
func GenerateSecureToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", fmt.Errorf("length must be positive")
	}

	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken calculates a SHA-256 hash of the provided value.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// TokenIssuer produces opaque provisioning tokens. Only the hash is meant to be
// persisted; the raw value travels in the setup link.
type TokenIssuer struct {
	byteLength int
}

// NewTokenIssuer returns an issuer producing ProvisioningTokenBytes of entropy.
func NewTokenIssuer() *TokenIssuer {
	return &TokenIssuer{byteLength: ProvisioningTokenBytes}
}

// Issue returns a fresh raw token and its hash.
func (i *TokenIssuer) Issue() (raw, hash string, err error) {
	raw, err = GenerateSecureToken(i.byteLength)
	if err != nil {
		return "", "", err
	}
	return raw, HashToken(raw), nil
}

// Hash returns the persisted form of raw.
func (i *TokenIssuer) Hash(raw string) string {
	return HashToken(raw)
}
