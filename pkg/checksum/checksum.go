// Package checksum computes the sha256 content digests used throughout the
// vault: checksum_main covers a secret's ciphertext bytes, checksum_meta
// covers a metadata document with its own digest field cleared.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
)

// OfBytes returns the lowercase hex sha256 digest of data.
func OfBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// OfString returns the lowercase hex sha256 digest of s's UTF-8 bytes.
func OfString(s string) string {
	return OfBytes([]byte(s))
}

// OfFile reads path and returns the lowercase hex sha256 digest of its
// contents.
func OfFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return OfBytes(data), nil
}
