package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// opaqueTokenBytes gives 256 bits of entropy (64 hex chars).
const opaqueTokenBytes = 32

// NewOpaqueToken returns a random hex token for email verification and
// password reset links.
func NewOpaqueToken() (string, error) {
	return randomHex(opaqueTokenBytes)
}

// HashToken returns the SHA-256 hex digest of a token.  Only this digest
// is ever persisted.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// EqualHash compares two hex digests in constant time.
func EqualHash(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// randomHex returns a hex‑encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
