// Package models - access_code.go defines the AccessCode model. Codes gate account
// creation: a code is minted by an admin (or granted by a partner campaign), redeemed
// by an anonymous visitor, and bound to the account it creates.
package models

import "time"

// AccessCodeStatus represents the lifecycle state of an access code
type AccessCodeStatus string

// Access code statuses. Transitions are one-directional: a code leaves "valid"
// exactly once and never returns.
const (
	AccessCodeStatusValid   AccessCodeStatus = "valid"
	AccessCodeStatusUsed    AccessCodeStatus = "used"
	AccessCodeStatusExpired AccessCodeStatus = "expired"
	AccessCodeStatusRevoked AccessCodeStatus = "revoked"
)

// AccessCode represents an invitation code for account creation
type AccessCode struct {
	ID             string
	Code           string // Unique, formatted XXXX-XXXX-XXXX
	Source         string // Origin of the code ("admin", campaign name, ...)
	Status         AccessCodeStatus
	MaxActivations int
	CurrentUses    int        // Always <= MaxActivations
	ExpiresAt      *time.Time // NULL = never expires
	UserID         *string    // Account the code created, set on redemption
	UsedAt         *time.Time
	CreatedAt      time.Time
}

// LimitReached reports whether the code has no activations left.
func (c *AccessCode) LimitReached() bool {
	return c.CurrentUses >= c.MaxActivations
}

// IsExpired reports whether the code's expiry has passed at the given instant.
// Codes without an expiry never expire.
func (c *AccessCode) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}
