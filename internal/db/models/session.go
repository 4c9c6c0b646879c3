// Package models - session.go defines the Session model for bearer-token
// authentication. The raw token is stored and looked up directly; it is returned to
// the client exactly once, at creation.
package models

import "time"

// Session represents an authenticated session
type Session struct {
	ID         string
	UserID     string
	Token      string // Opaque bearer token, unique
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time // Set on logout or bulk revocation, never cleared
	LastSeenAt time.Time
	UserAgent  *string
	IP         *string
}

// IsExpired reports whether the session's lifetime has elapsed at the given instant.
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// IsRevoked reports whether the session was explicitly revoked.
func (s *Session) IsRevoked() bool {
	return s.RevokedAt != nil
}
