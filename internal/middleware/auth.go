// Package middleware provides Gin HTTP middleware for authentication, admin
// gating, rate limiting, security headers, and audit logging.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RateLimit → Auth → RequireAdmin → Audit → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attacks before any DB work.
// Auth populates the user and session in the request context; RequireAdmin reads
// from that context. Audit logging runs after the admin gate so only authorized
// mutations are recorded as successful actions.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oneira/oneira/internal/auth"
	"github.com/oneira/oneira/internal/db/repositories"
	"github.com/oneira/oneira/internal/safego"
)

// errUnauthorized is the single body returned for every authentication failure.
// Missing header, unknown token, expired or revoked session, and disabled account
// all look identical to the caller so the response never leaks which check failed.
var errUnauthorized = gin.H{"error": "unauthorized"}

// AuthMiddleware validates the opaque session token from the Authorization header
// and loads the owning user into the request context.
func AuthMiddleware(sessionRepo *repositories.SessionRepository, userRepo *repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errUnauthorized)
			return
		}

		session, err := sessionRepo.GetSessionByToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "authentication failed",
			})
			return
		}

		if session == nil || session.IsRevoked() || session.IsExpired(time.Now()) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errUnauthorized)
			return
		}

		user, err := userRepo.GetUserByID(c.Request.Context(), session.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "authentication failed",
			})
			return
		}

		if user == nil || !user.IsActive() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errUnauthorized)
			return
		}

		// Update last-seen asynchronously. This is intentionally fire-and-forget:
		// last-seen tracking is best-effort and a failed update is not a correctness
		// problem. Making it synchronous would add a DB write to every authenticated
		// request. The 5-second timeout prevents leaked goroutines if the DB is
		// temporarily unreachable.
		sessionID := session.ID
		safego.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = sessionRepo.TouchLastSeen(ctx, sessionID)
		})

		c.Set("user", user)
		c.Set("user_id", user.ID)
		c.Set("session", session)
		c.Set("session_id", session.ID)
		c.Set("role", user.Role)

		c.Next()
	}
}

// RequireAdmin gates a route group to admin accounts. Must run after AuthMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errUnauthorized)
			return
		}

		if !user.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "admin access required",
			})
			return
		}

		c.Next()
	}
}
