// Package admin implements the backoffice endpoints: minting and revoking
// access codes, managing user accounts and plans, and browsing generation jobs
// and the audit trail. Every route here sits behind the admin role check.
package admin

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oneira/oneira/internal/auth"
	"github.com/oneira/oneira/internal/config"
	"github.com/oneira/oneira/internal/db/models"
	"github.com/oneira/oneira/internal/db/repositories"
)

// maxMintBatch caps how many codes one request can mint
const maxMintBatch = 500

// AccessCodeHandlers contains handlers for access code management
type AccessCodeHandlers struct {
	cfg      *config.Config
	codeRepo *repositories.AccessCodeRepository
}

// NewAccessCodeHandlers creates access code handlers with their dependencies
func NewAccessCodeHandlers(cfg *config.Config, db *sql.DB) *AccessCodeHandlers {
	return &AccessCodeHandlers{
		cfg:      cfg,
		codeRepo: repositories.NewAccessCodeRepository(db),
	}
}

func codeJSON(ac *models.AccessCode) gin.H {
	return gin.H{
		"id":             ac.ID,
		"code":           ac.Code,
		"source":         ac.Source,
		"status":         ac.Status,
		"maxActivations": ac.MaxActivations,
		"currentUses":    ac.CurrentUses,
		"expiresAt":      ac.ExpiresAt,
		"userId":         ac.UserID,
		"usedAt":         ac.UsedAt,
		"createdAt":      ac.CreatedAt,
	}
}

// pagination parses and clamps the page/perPage query parameters
func pagination(c *gin.Context) (page, perPage, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("perPage", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage, (page - 1) * perPage
}

// MintCodesRequest asks for a batch of fresh access codes
type MintCodesRequest struct {
	Count          int    `json:"count" binding:"required,min=1"`
	Source         string `json:"source"`
	MaxActivations int    `json:"maxActivations"`
	ExpiresInDays  *int   `json:"expiresInDays"`
}

// MintCodesHandler mints a batch of access codes. The plaintext codes are
// returned so the operator can hand them out; they remain listable afterwards.
// POST /v1/admin/access-codes
func (h *AccessCodeHandlers) MintCodesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req MintCodesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "count is required and must be at least 1"})
			return
		}
		if req.Count > maxMintBatch {
			c.JSON(http.StatusBadRequest, gin.H{"error": "at most 500 codes per batch"})
			return
		}
		if req.ExpiresInDays != nil && *req.ExpiresInDays < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "expiresInDays must be at least 1"})
			return
		}

		source := req.Source
		if source == "" {
			source = "admin"
		}
		maxActivations := req.MaxActivations
		if maxActivations < 1 {
			maxActivations = 1
		}
		var expiresAt *time.Time
		if req.ExpiresInDays != nil {
			t := time.Now().AddDate(0, 0, *req.ExpiresInDays)
			expiresAt = &t
		}

		codes := make([]*models.AccessCode, 0, req.Count)
		for i := 0; i < req.Count; i++ {
			code, err := auth.GenerateAccessCode()
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate access code"})
				return
			}
			codes = append(codes, &models.AccessCode{
				Code:           code,
				Source:         source,
				Status:         models.AccessCodeStatusValid,
				MaxActivations: maxActivations,
				ExpiresAt:      expiresAt,
			})
		}

		if err := h.codeRepo.CreateBatch(c.Request.Context(), codes); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mint access codes"})
			return
		}

		out := make([]gin.H, 0, len(codes))
		for _, ac := range codes {
			out = append(out, codeJSON(ac))
		}
		c.JSON(http.StatusCreated, gin.H{"success": true, "codes": out})
	}
}

// ListCodesHandler lists access codes, optionally filtered by status and source
// GET /v1/admin/access-codes?status=valid&source=admin&page=1&perPage=20
func (h *AccessCodeHandlers) ListCodesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := c.Query("status")
		switch models.AccessCodeStatus(status) {
		case "", models.AccessCodeStatusValid, models.AccessCodeStatusUsed,
			models.AccessCodeStatusExpired, models.AccessCodeStatusRevoked:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown code status"})
			return
		}

		page, perPage, offset := pagination(c)
		codes, total, err := h.codeRepo.ListAccessCodes(c.Request.Context(), status, c.Query("source"), perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list access codes"})
			return
		}

		out := make([]gin.H, 0, len(codes))
		for _, ac := range codes {
			out = append(out, codeJSON(ac))
		}
		c.JSON(http.StatusOK, gin.H{
			"codes": out,
			"pagination": gin.H{
				"page":    page,
				"perPage": perPage,
				"total":   total,
			},
		})
	}
}

// RevokeCodeHandler invalidates a still-valid code. Codes that already left
// the valid state cannot be revoked; the transition is one-way either way.
// POST /v1/admin/access-codes/:id/revoke
func (h *AccessCodeHandlers) RevokeCodeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		codeID := c.Param("id")

		code, err := h.codeRepo.GetByID(c.Request.Context(), codeID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load access code"})
			return
		}
		if code == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "access code not found"})
			return
		}

		revoked, err := h.codeRepo.Revoke(c.Request.Context(), codeID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke access code"})
			return
		}
		if !revoked {
			c.JSON(http.StatusConflict, gin.H{
				"error":  "only valid codes can be revoked",
				"status": code.Status,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
