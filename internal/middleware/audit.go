// audit.go provides Gin middleware that records authenticated write operations to the
// audit log, with optional shipping to an external collector.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oneira/oneira/internal/audit"
	"github.com/oneira/oneira/internal/config"
	"github.com/oneira/oneira/internal/db/models"
	"github.com/oneira/oneira/internal/db/repositories"
	"github.com/oneira/oneira/internal/safego"
)

// AuditMiddleware logs authenticated actions to the database only
func AuditMiddleware(auditRepo *repositories.AuditRepository) gin.HandlerFunc {
	return AuditMiddlewareWithShipper(auditRepo, nil, nil)
}

// AuditMiddlewareWithShipper logs authenticated actions and ships a copy to the
// configured external collector. The entry is written after the handler runs so the
// response status is known; the write itself is asynchronous and never delays the
// response.
func AuditMiddlewareWithShipper(auditRepo *repositories.AuditRepository, shipper audit.Shipper, auditCfg *config.AuditConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Process request first
		c.Next()

		// Skip OPTIONS always
		if c.Request.Method == "OPTIONS" {
			return
		}

		// Determine what to log based on config
		logReadOps := auditCfg != nil && auditCfg.LogReadOperations
		logFailedReqs := auditCfg != nil && auditCfg.LogFailedRequests

		isReadOp := c.Request.Method == "GET"
		isFailed := c.Writer.Status() >= 400

		if isReadOp && !logReadOps {
			return
		}
		if isFailed && !logFailedReqs {
			return
		}

		path := c.Request.URL.Path
		action := auditAction(c.Request.Method, path)
		resourceType := auditResourceType(path)
		ipAddress := c.ClientIP()
		statusCode := c.Writer.Status()

		auditLog := &models.AuditLog{
			Action:    action,
			IPAddress: &ipAddress,
			CreatedAt: time.Now(),
			Metadata: map[string]interface{}{
				"status_code": statusCode,
			},
		}

		userID := CurrentUserID(c)
		if userID != "" {
			auditLog.UserID = &userID
		}
		if resourceType != "" {
			auditLog.ResourceType = &resourceType
		}

		// Async log creation (non-blocking)
		safego.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if auditRepo != nil {
				if err := auditRepo.CreateAuditLog(ctx, auditLog); err != nil {
					slog.Error("failed to create audit log", "error", err, "action", action)
				}
			}

			if shipper != nil {
				entry := &audit.LogEntry{
					Timestamp:    auditLog.CreatedAt,
					Action:       action,
					UserID:       userID,
					ResourceType: resourceType,
					IPAddress:    ipAddress,
					StatusCode:   statusCode,
					Metadata:     auditLog.Metadata,
				}

				if err := shipper.Ship(ctx, entry); err != nil {
					slog.Error("failed to ship audit log", "error", err, "action", action)
				}
			}
		})
	}
}

// auditAction maps a request to an action string. Known mutations get dotted names
// matching the entries written by handlers ("access_code.mint"); everything else
// falls back to "METHOD /path".
func auditAction(method, path string) string {
	switch {
	case strings.Contains(path, "/access-codes"):
		if strings.Contains(path, "/revoke") {
			return "access_code.revoke"
		}
		if method == "POST" {
			return "access_code.mint"
		}
	case strings.Contains(path, "/dreams"):
		if strings.Contains(path, "/generate") {
			return "dream.generate_requested"
		}
		switch method {
		case "POST":
			return "dream.created"
		case "PUT", "PATCH":
			return "dream.updated"
		case "DELETE":
			return "dream.deleted"
		}
	case strings.Contains(path, "/photos"):
		switch method {
		case "POST":
			return "photo.uploaded"
		case "PUT", "PATCH":
			return "photo.updated"
		case "DELETE":
			return "photo.deleted"
		}
	case strings.Contains(path, "/users"):
		if strings.Contains(path, "/status") {
			return "user.status_changed"
		}
	case strings.Contains(path, "/me"):
		switch {
		case method == "DELETE":
			return "user.deleted"
		case strings.Contains(path, "/pin"):
			return "user.pin_changed"
		}
	case strings.Contains(path, "/auth"):
		switch {
		case strings.Contains(path, "/redeem"):
			return "access_code.redeemed"
		case strings.Contains(path, "/logout-all"):
			return "session.revoked_all"
		case strings.Contains(path, "/logout"):
			return "session.revoked"
		case strings.Contains(path, "/pin/verify"):
			return "session.created"
		case strings.HasSuffix(path, "/pin"):
			return "user.created"
		}
	}
	return fmt.Sprintf("%s %s", method, path)
}

// auditResourceType maps a request path to the resource type recorded on the entry.
func auditResourceType(path string) string {
	switch {
	case strings.Contains(path, "/access-codes"):
		return "access_code"
	case strings.Contains(path, "/dreams"):
		return "dream"
	case strings.Contains(path, "/photos"):
		return "photo"
	case strings.Contains(path, "/jobs"):
		return "generation_job"
	case strings.Contains(path, "/users"), strings.Contains(path, "/me"):
		return "user"
	case strings.Contains(path, "/auth"):
		if strings.Contains(path, "/redeem") {
			return "access_code"
		}
		if strings.HasSuffix(path, "/pin") {
			return "user"
		}
		return "session"
	}
	return ""
}
