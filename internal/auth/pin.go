// Package auth - pin.go handles PIN hashing and verification with bcrypt. PINs are
// short numeric secrets, so the work factor and the access-code gate in front of
// account creation carry the brute-force burden.
package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is used when the configuration does not specify a cost.
const DefaultBcryptCost = 12

// HashPIN hashes a PIN with bcrypt at the given cost. A cost of 0 selects
// DefaultBcryptCost.
func HashPIN(pin string, cost int) (string, error) {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash PIN: %w", err)
	}
	return string(hash), nil
}

// CheckPIN reports whether the provided PIN matches the stored hash.
func CheckPIN(pin, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(pin)) == nil
}

// ValidatePINFormat checks that a PIN is all digits and within the configured length
// bounds. Returns a descriptive error for the 400 response body.
func ValidatePINFormat(pin string, minLength, maxLength int) error {
	if len(pin) < minLength || len(pin) > maxLength {
		return fmt.Errorf("PIN must be between %d and %d digits", minLength, maxLength)
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return fmt.Errorf("PIN must contain only digits")
		}
	}
	return nil
}
