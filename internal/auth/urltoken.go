// Package auth - urltoken.go mints and verifies short-lived signed tokens for file
// URLs served by the local storage backend, mirroring what S3 presigned URLs provide.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// FileClaims carries the storage path a signed file URL grants access to.
type FileClaims struct {
	Path string `json:"path"`
	jwt.RegisteredClaims
}

// URLSigner mints and verifies signed file URL tokens with a shared secret.
type URLSigner struct {
	secret []byte
}

// NewURLSigner creates a signer from the configured secret.
func NewURLSigner(secret string) *URLSigner {
	return &URLSigner{secret: []byte(secret)}
}

// Sign creates a token granting access to path until the TTL elapses.
func (s *URLSigner) Sign(path string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}

	claims := &FileClaims{
		Path: path,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "oneira",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses a token and returns the storage path it grants. Expired or tampered
// tokens return an error.
func (s *URLSigner) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &FileClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}

	if !token.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(*FileClaims)
	if !ok {
		return "", errors.New("invalid claims type")
	}

	if claims.Path == "" {
		return "", errors.New("token has no path claim")
	}

	return claims.Path, nil
}
