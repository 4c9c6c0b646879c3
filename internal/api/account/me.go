// me.go implements the authenticated account surface: profile, PIN change,
// session management, and account deletion.
package account

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/oneira/oneira/internal/auth"
	"github.com/oneira/oneira/internal/db/models"
	"github.com/oneira/oneira/internal/middleware"
)

// userJSON shapes a user for API responses. The PIN hash never leaves the server.
func userJSON(u *models.User) gin.H {
	return gin.H{
		"id":          u.ID,
		"role":        u.Role,
		"status":      u.Status,
		"planId":      u.PlanID,
		"displayName": u.DisplayName,
		"createdAt":   u.CreatedAt,
	}
}

// sessionJSON shapes a session for the device list. The bearer token is omitted;
// it is shown exactly once, at creation.
func sessionJSON(s *models.Session, currentID string) gin.H {
	return gin.H{
		"id":         s.ID,
		"createdAt":  s.CreatedAt,
		"expiresAt":  s.ExpiresAt,
		"lastSeenAt": s.LastSeenAt,
		"revoked":    s.IsRevoked(),
		"userAgent":  s.UserAgent,
		"ip":         s.IP,
		"current":    s.ID == currentID,
	}
}

// MeHandler returns the caller's profile, plan, and how many generations are
// left this month (-1 means unlimited).
// GET /v1/me
func (h *AccountHandlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)

		remaining, err := h.quota.RemainingGenerations(c.Request.Context(), user)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to compute remaining quota",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user":                 userJSON(user),
			"plan":                 h.catalogue.Resolve(user.PlanID),
			"remainingGenerations": remaining,
		})
	}
}

// UpdateMeRequest carries the editable profile fields. A null displayName is
// "no change"; an empty string clears the name.
type UpdateMeRequest struct {
	DisplayName *string `json:"displayName"`
}

// UpdateMeHandler updates the caller's profile.
// PUT /v1/me
func (h *AccountHandlers) UpdateMeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateMeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "invalid request body",
			})
			return
		}

		if req.DisplayName == nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "no fields to update",
			})
			return
		}

		name := strings.TrimSpace(*req.DisplayName)
		if len(name) > 100 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "displayName must be 100 characters or fewer",
			})
			return
		}

		var displayName *string
		if name != "" {
			displayName = &name
		}

		userID := middleware.CurrentUserID(c)
		if err := h.userRepo.UpdateProfile(c.Request.Context(), userID, displayName); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to update profile",
			})
			return
		}

		user := middleware.CurrentUser(c)
		user.DisplayName = displayName

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"user":    userJSON(user),
		})
	}
}

// ChangePINRequest carries the current PIN for proof and the replacement.
type ChangePINRequest struct {
	CurrentPIN string `json:"currentPin" binding:"required"`
	NewPIN     string `json:"newPin" binding:"required"`
}

// ChangePINHandler replaces the caller's PIN and revokes every other session so
// a stolen token cannot outlive the credential change.
// PUT /v1/me/pin
func (h *AccountHandlers) ChangePINHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ChangePINRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "currentPin and newPin are required",
			})
			return
		}

		user := middleware.CurrentUser(c)
		if !auth.CheckPIN(req.CurrentPIN, user.PINHash) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}

		if err := auth.ValidatePINFormat(req.NewPIN, h.cfg.Auth.PinMinLength, h.cfg.Auth.PinMaxLength); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}

		pinHash, err := auth.HashPIN(req.NewPIN, h.cfg.Auth.BcryptCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to change PIN",
			})
			return
		}

		if err := h.userRepo.UpdatePINHash(c.Request.Context(), user.ID, pinHash); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to change PIN",
			})
			return
		}

		sessionID := middleware.CurrentSession(c).ID
		if err := h.sessionRepo.RevokeAllUserSessions(c.Request.Context(), user.ID, &sessionID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "PIN changed but other sessions could not be revoked",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
		})
	}
}

// DeleteMeHandler soft-deletes the caller's account and revokes all of its
// sessions. The row is kept so audit entries and jobs stay attributable.
// DELETE /v1/me
func (h *AccountHandlers) DeleteMeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.CurrentUserID(c)

		if err := h.userRepo.SoftDeleteUser(c.Request.Context(), userID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to delete account",
			})
			return
		}

		if err := h.sessionRepo.RevokeAllUserSessions(c.Request.Context(), userID, nil); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "account deleted but sessions could not be revoked",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
		})
	}
}

// LogoutHandler revokes the session presented on this request.
// POST /v1/auth/logout
func (h *AccountHandlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := middleware.CurrentSession(c)

		if err := h.sessionRepo.RevokeSession(c.Request.Context(), session.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to log out",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
		})
	}
}

// LogoutAllHandler revokes every session of the caller, including this one.
// POST /v1/auth/logout-all
func (h *AccountHandlers) LogoutAllHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.CurrentUserID(c)

		if err := h.sessionRepo.RevokeAllUserSessions(c.Request.Context(), userID, nil); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to log out",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
		})
	}
}

// ListSessionsHandler lists the caller's sessions, current one flagged, so
// clients can show active devices before a logout-all.
// GET /v1/me/sessions
func (h *AccountHandlers) ListSessionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.CurrentUserID(c)
		currentID := middleware.CurrentSession(c).ID

		sessions, err := h.sessionRepo.ListSessionsByUser(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to list sessions",
			})
			return
		}

		out := make([]gin.H, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, sessionJSON(s, currentID))
		}

		c.JSON(http.StatusOK, gin.H{
			"sessions": out,
		})
	}
}
