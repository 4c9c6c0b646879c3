package admin

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oneira/oneira/internal/config"
	"github.com/oneira/oneira/internal/db/models"
	"github.com/oneira/oneira/internal/db/repositories"
)

// AuditLogHandlers contains handlers for browsing the audit trail
type AuditLogHandlers struct {
	cfg       *config.Config
	auditRepo *repositories.AuditRepository
}

// NewAuditLogHandlers creates audit log handlers with their dependencies
func NewAuditLogHandlers(cfg *config.Config, db *sql.DB) *AuditLogHandlers {
	return &AuditLogHandlers{
		cfg:       cfg,
		auditRepo: repositories.NewAuditRepository(db),
	}
}

func auditJSON(log *models.AuditLog) gin.H {
	return gin.H{
		"id":           log.ID,
		"userId":       log.UserID,
		"action":       log.Action,
		"resourceType": log.ResourceType,
		"resourceId":   log.ResourceID,
		"metadata":     log.Metadata,
		"ipAddress":    log.IPAddress,
		"createdAt":    log.CreatedAt,
	}
}

// optional returns a pointer to the query parameter, or nil when absent.
func optional(c *gin.Context, key string) *string {
	if v := c.Query(key); v != "" {
		return &v
	}
	return nil
}

// ListAuditLogsHandler lists audit entries, newest first. Dates are RFC 3339.
// GET /v1/admin/audit-logs?userId=&action=&resourceType=&startDate=&endDate=&page=&perPage=
func (h *AuditLogHandlers) ListAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filters := repositories.AuditFilters{
			UserID:       optional(c, "userId"),
			Action:       optional(c, "action"),
			ResourceType: optional(c, "resourceType"),
		}
		if v := c.Query("startDate"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "startDate must be RFC 3339"})
				return
			}
			filters.StartDate = &t
		}
		if v := c.Query("endDate"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "endDate must be RFC 3339"})
				return
			}
			filters.EndDate = &t
		}

		page, perPage, offset := pagination(c)
		logs, total, err := h.auditRepo.ListAuditLogs(c.Request.Context(), filters, perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list audit logs"})
			return
		}

		out := make([]gin.H, 0, len(logs))
		for _, log := range logs {
			out = append(out, auditJSON(log))
		}
		c.JSON(http.StatusOK, gin.H{
			"logs": out,
			"pagination": gin.H{
				"page":    page,
				"perPage": perPage,
				"total":   total,
			},
		})
	}
}
