// Package checksum hashes photo uploads. The hex SHA-256 digest is stored on
// the photo row next to the object key, so duplicate uploads are detectable
// and a served object can be checked against what was ingested.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Sum streams r through SHA-256 and returns the lowercase hex digest.
func Sum(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SumBytes returns the lowercase hex SHA-256 digest of b.
func SumBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Verify reports whether the digest of r equals want.
func Verify(r io.Reader, want string) (bool, error) {
	got, err := Sum(r)
	if err != nil {
		return false, err
	}
	return got == want, nil
}
