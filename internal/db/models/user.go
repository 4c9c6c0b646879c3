// Package models - user.go defines the User model for platform accounts. Accounts
// are created by redeeming an access code and authenticate with a PIN; there is no
// email or external identity provider.
package models

import "time"

// User roles. Admins can mint access codes and browse the backoffice.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User statuses.
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// User represents an account on the platform
type User struct {
	ID          string
	PINHash     string  // Bcrypt hash of the login PIN
	Role        string  // "user" or "admin"
	Status      string  // "active" or "disabled"
	PlanID      string  // References a plan from the configured catalogue
	DisplayName *string // Optional, user-chosen
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time // Soft delete; set once, never cleared
}

// IsActive reports whether the account can authenticate: active status and not
// soft-deleted.
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive && u.DeletedAt == nil
}

// IsAdmin reports whether the account holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
