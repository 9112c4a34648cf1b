// Package pkce implements the Proof Key for Code Exchange primitives
// (RFC 7636) used to bind authorization codes to this client.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// VerifierLength is the number of random bytes backing a code_verifier.
// 32 bytes encode to 43 base64url characters, the RFC 7636 minimum.
const VerifierLength = 32

// GenerateVerifier generates a cryptographically random code_verifier as
// defined in RFC 7636 §4.1: a 32-byte random value base64url-encoded without
// padding.
func GenerateVerifier() (string, error) {
	b := make([]byte, VerifierLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Challenge computes the S256 code_challenge for a verifier per RFC 7636
// §4.2: BASE64URL(SHA256(ASCII(verifier))). Deterministic, no side effects.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
