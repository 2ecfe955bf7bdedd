package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// CardKeySize is the byte length of the 2K3DES card keys the service mints.
const CardKeySize = 16

// GenerateCardKey returns size cryptographically random bytes for use as a
// fresh card key.
func GenerateCardKey(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("cryptox: key size must be positive, got %d", size)
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("cryptox: failed to generate key: %w", err)
	}
	return buf, nil
}

// FingerprintKey returns a deterministic SHA-256 fingerprint of key
// material, base64url encoded. The fingerprint is what the ledger stores;
// it never equals, and cannot be reversed into, the plaintext key.
func FingerprintKey(key []byte) string {
	sum := sha256.Sum256(key)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
