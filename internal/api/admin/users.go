package admin

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oneira/oneira/internal/billing"
	"github.com/oneira/oneira/internal/config"
	"github.com/oneira/oneira/internal/db/models"
	"github.com/oneira/oneira/internal/db/repositories"
)

// UserHandlers contains handlers for account administration
type UserHandlers struct {
	cfg         *config.Config
	userRepo    *repositories.UserRepository
	sessionRepo *repositories.SessionRepository
	catalogue   *billing.Catalogue
}

// NewUserHandlers creates user admin handlers with their dependencies
func NewUserHandlers(cfg *config.Config, db *sql.DB, catalogue *billing.Catalogue) *UserHandlers {
	return &UserHandlers{
		cfg:         cfg,
		userRepo:    repositories.NewUserRepository(db),
		sessionRepo: repositories.NewSessionRepository(db),
		catalogue:   catalogue,
	}
}

// adminUserJSON exposes moderation fields the self-service view hides, such as
// deletedAt. The PIN hash never leaves the server.
func adminUserJSON(u *models.User) gin.H {
	return gin.H{
		"id":          u.ID,
		"role":        u.Role,
		"status":      u.Status,
		"planId":      u.PlanID,
		"displayName": u.DisplayName,
		"createdAt":   u.CreatedAt,
		"updatedAt":   u.UpdatedAt,
		"deletedAt":   u.DeletedAt,
	}
}

// ListUsersHandler lists accounts, newest first
// GET /v1/admin/users?page=1&perPage=20
func (h *UserHandlers) ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, perPage, offset := pagination(c)

		users, total, err := h.userRepo.ListUsers(c.Request.Context(), perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
			return
		}

		out := make([]gin.H, 0, len(users))
		for _, u := range users {
			out = append(out, adminUserJSON(u))
		}
		c.JSON(http.StatusOK, gin.H{
			"users": out,
			"pagination": gin.H{
				"page":    page,
				"perPage": perPage,
				"total":   total,
			},
		})
	}
}

// GetUserHandler returns one account
// GET /v1/admin/users/:id
func (h *UserHandlers) GetUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.userRepo.GetUserByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": adminUserJSON(user)})
	}
}

// SetUserStatusRequest switches an account between active and disabled
type SetUserStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// SetUserStatusHandler enables or disables an account. Disabling revokes every
// session so the user is logged out immediately, not at next token check.
// PUT /v1/admin/users/:id/status
func (h *UserHandlers) SetUserStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetUserStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
			return
		}
		if req.Status != models.UserStatusActive && req.Status != models.UserStatusDisabled {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be active or disabled"})
			return
		}

		userID := c.Param("id")
		user, err := h.userRepo.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}

		if err := h.userRepo.SetStatus(c.Request.Context(), userID, req.Status); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user status"})
			return
		}
		if req.Status == models.UserStatusDisabled {
			if err := h.sessionRepo.RevokeAllUserSessions(c.Request.Context(), userID, nil); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke user sessions"})
				return
			}
		}

		user.Status = req.Status
		c.JSON(http.StatusOK, gin.H{"success": true, "user": adminUserJSON(user)})
	}
}

// UpdateUserPlanRequest moves an account onto another plan
type UpdateUserPlanRequest struct {
	PlanID string `json:"planId" binding:"required"`
}

// UpdateUserPlanHandler assigns a plan from the catalogue to an account. This
// is how paid upgrades land: an operator checks the payment webhook log and
// applies the plan by hand.
// PUT /v1/admin/users/:id/plan
func (h *UserHandlers) UpdateUserPlanHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateUserPlanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "planId is required"})
			return
		}
		if _, ok := h.catalogue.Get(req.PlanID); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown plan: " + req.PlanID})
			return
		}

		userID := c.Param("id")
		user, err := h.userRepo.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}

		if err := h.userRepo.UpdatePlan(c.Request.Context(), userID, req.PlanID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user plan"})
			return
		}

		user.PlanID = req.PlanID
		c.JSON(http.StatusOK, gin.H{"success": true, "user": adminUserJSON(user)})
	}
}
