package utils

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// NormalizeEmail lowercases and trims an address for comparison and hashing.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailDigest is a keyed BLAKE2b-256 of the normalized address, stable across
// processes that share the key. Keys longer than 64 bytes are rejected.
func EmailDigest(key []byte, email string) (string, error) {
	h, err := blake2b.New256(key)
	if err != nil {
		return "", fmt.Errorf("email digest: %w", err)
	}
	h.Write([]byte(NormalizeEmail(email)))
	return hex.EncodeToString(h.Sum(nil)), nil
}
