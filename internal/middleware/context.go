package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/oneira/oneira/internal/db/models"
)

// CurrentUser returns the authenticated user set by AuthMiddleware, or nil when the
// request is unauthenticated or the context value has the wrong type.
func CurrentUser(c *gin.Context) *models.User {
	val, exists := c.Get("user")
	if !exists {
		return nil
	}
	user, ok := val.(*models.User)
	if !ok {
		return nil
	}
	return user
}

// CurrentSession returns the session set by AuthMiddleware, or nil.
func CurrentSession(c *gin.Context) *models.Session {
	val, exists := c.Get("session")
	if !exists {
		return nil
	}
	session, ok := val.(*models.Session)
	if !ok {
		return nil
	}
	return session
}

// CurrentUserID returns the authenticated user's ID, or "" when unauthenticated.
func CurrentUserID(c *gin.Context) string {
	val, exists := c.Get("user_id")
	if !exists {
		return ""
	}
	id, ok := val.(string)
	if !ok {
		return ""
	}
	return id
}
