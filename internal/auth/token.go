// Package auth provides authentication primitives for the platform: opaque session
// token generation, access code minting, PIN hashing, and signed URL tokens for the
// local storage backend.
// See internal/middleware/auth.go for the request-time authentication logic that uses these primitives.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	// SessionTokenLength is the length of the session token in bytes
	SessionTokenLength = 32

	// AccessCodeLength is the number of alphanumeric characters in an access code
	AccessCodeLength = 12

	// accessCodeGroupSize is the grouping used when formatting codes for display
	accessCodeGroupSize = 4
)

// accessCodeAlphabet excludes ambiguous characters (0/O, 1/I/L) so codes survive
// being read aloud or copied by hand.
const accessCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// GenerateSessionToken creates a new opaque session token. The token is returned to
// the client once at session creation and stored verbatim for lookup.
func GenerateSessionToken() (string, error) {
	randomBytes := make([]byte, SessionTokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// GenerateAccessCode creates a new access code in XXXX-XXXX-XXXX form using the
// unambiguous alphabet. Sampling uses crypto/rand.Int so no character is favored.
func GenerateAccessCode() (string, error) {
	max := big.NewInt(int64(len(accessCodeAlphabet)))
	chars := make([]byte, AccessCodeLength)
	for i := range chars {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random index: %w", err)
		}
		chars[i] = accessCodeAlphabet[n.Int64()]
	}

	var b strings.Builder
	for i, c := range chars {
		if i > 0 && i%accessCodeGroupSize == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(c)
	}
	return b.String(), nil
}

// NormalizeAccessCode canonicalizes user input for lookup: uppercase, whitespace and
// separators stripped, then regrouped as XXXX-XXXX-XXXX. Input that doesn't have the
// expected character count is returned cleaned but ungrouped, so lookups simply miss.
func NormalizeAccessCode(input string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - ('a' - 'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return -1 // drop separators and whitespace
		}
	}, input)

	if len(cleaned) != AccessCodeLength {
		return cleaned
	}

	var b strings.Builder
	for i := 0; i < len(cleaned); i += accessCodeGroupSize {
		if i > 0 {
			b.WriteByte('-')
		}
		b.WriteString(cleaned[i : i+accessCodeGroupSize])
	}
	return b.String()
}

// ExtractBearerToken extracts the token from an Authorization header.
// Expected format: "Bearer <token>"
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	token := strings.TrimPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)

	if token == "" {
		return "", errors.New("token is empty after Bearer prefix")
	}

	return token, nil
}
