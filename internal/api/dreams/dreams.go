// Package dreams implements the dream CRUD surface. A dream is the user's
// description of the video they want generated plus the photos that should
// appear in it. Generation itself lives in generate.go.
package dreams

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/oneira/oneira/internal/billing"
	"github.com/oneira/oneira/internal/config"
	"github.com/oneira/oneira/internal/db/models"
	"github.com/oneira/oneira/internal/db/repositories"
	"github.com/oneira/oneira/internal/generation"
	"github.com/oneira/oneira/internal/middleware"
)

// DreamHandlers handles dream CRUD and generation endpoints
type DreamHandlers struct {
	cfg          *config.Config
	dreamRepo    *repositories.DreamRepository
	jobRepo      *repositories.GenerationJobRepository
	photoRepo    *repositories.PhotoRepository
	assetRepo    *repositories.ImageAssetRepository
	quota        *billing.Quota
	orchestrator *generation.Orchestrator
}

// NewDreamHandlers creates a new DreamHandlers instance
func NewDreamHandlers(cfg *config.Config, db *sqlx.DB, quota *billing.Quota, orch *generation.Orchestrator) *DreamHandlers {
	return &DreamHandlers{
		cfg:          cfg,
		dreamRepo:    repositories.NewDreamRepository(db),
		jobRepo:      repositories.NewGenerationJobRepository(db.DB),
		photoRepo:    repositories.NewPhotoRepository(db.DB),
		assetRepo:    repositories.NewImageAssetRepository(db.DB),
		quota:        quota,
		orchestrator: orch,
	}
}

// dreamJSON shapes a dream for API responses. The reject column is decoded from
// its stored JSON form into a plain list.
func dreamJSON(d *models.Dream) gin.H {
	reject, err := d.RejectTerms()
	if err != nil {
		reject = []string{}
	}
	return gin.H{
		"id":          d.ID,
		"title":       d.Title,
		"description": d.Description,
		"reject":      reject,
		"style":       d.Style,
		"status":      d.Status,
		"lastJobId":   d.LastJobID,
		"createdAt":   d.CreatedAt,
		"updatedAt":   d.UpdatedAt,
	}
}

// PhotoLink names a photo and the role it plays in the dream.
type PhotoLink struct {
	PhotoID string `json:"photoId" binding:"required"`
	Role    string `json:"role" binding:"required"`
}

// CreateDreamRequest carries the fields of a new dream.
type CreateDreamRequest struct {
	Title       string      `json:"title"`
	Description string      `json:"description" binding:"required"`
	Reject      []string    `json:"reject"`
	Style       *string     `json:"style"`
	Photos      []PhotoLink `json:"photos"`
}

// resolveLinks validates the requested photo links: known roles, photos that
// exist and belong to the caller. Writes the error response and returns nil on
// any violation.
func (h *DreamHandlers) resolveLinks(c *gin.Context, userID, dreamID string, reqLinks []PhotoLink) []models.DreamPhoto {
	links := make([]models.DreamPhoto, 0, len(reqLinks))
	for _, link := range reqLinks {
		if link.Role != models.DreamPhotoRoleSubject && link.Role != models.DreamPhotoRoleDecor {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "photo role must be subject or decor",
			})
			return nil
		}

		photo, err := h.photoRepo.GetPhotoByID(c.Request.Context(), link.PhotoID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to resolve photos",
			})
			return nil
		}
		if photo == nil || photo.UserID != userID {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "photo not found: " + link.PhotoID,
			})
			return nil
		}

		links = append(links, models.DreamPhoto{
			DreamID: dreamID,
			PhotoID: link.PhotoID,
			Role:    link.Role,
		})
	}
	return links
}

// ownedDream loads a dream and checks ownership. Dreams of other users read as
// absent, never as forbidden, so ids cannot be probed. Writes the error response
// and returns nil when the dream is not available to the caller.
func (h *DreamHandlers) ownedDream(c *gin.Context, dreamID string) *models.Dream {
	dream, err := h.dreamRepo.GetDreamByID(c.Request.Context(), dreamID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to retrieve dream",
		})
		return nil
	}
	if dream == nil || dream.UserID != middleware.CurrentUserID(c) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "dream not found",
		})
		return nil
	}
	return dream
}

// CreateDreamHandler creates a dream, optionally linking photos in one go.
// POST /v1/dreams
func (h *DreamHandlers) CreateDreamHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateDreamRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "description is required",
			})
			return
		}

		userID := middleware.CurrentUserID(c)

		dream := &models.Dream{
			UserID:      userID,
			Title:       req.Title,
			Description: req.Description,
			Style:       req.Style,
		}
		if err := dream.SetRejectTerms(req.Reject); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "invalid reject list",
			})
			return
		}

		if err := h.dreamRepo.CreateDream(c.Request.Context(), dream); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to create dream",
			})
			return
		}

		if len(req.Photos) > 0 {
			links := h.resolveLinks(c, userID, dream.ID, req.Photos)
			if links == nil {
				return
			}
			if err := h.dreamRepo.SetDreamPhotos(c.Request.Context(), dream.ID, links); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "failed to link photos",
				})
				return
			}
		}

		c.JSON(http.StatusCreated, gin.H{
			"success": true,
			"dream":   dreamJSON(dream),
		})
	}
}

// ListDreamsHandler lists the caller's dreams with pagination.
// GET /v1/dreams?page=1&perPage=20
func (h *DreamHandlers) ListDreamsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("perPage", "20"))

		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 100 {
			perPage = 20
		}

		offset := (page - 1) * perPage
		userID := middleware.CurrentUserID(c)

		dreams, total, err := h.dreamRepo.ListDreamsByUser(c.Request.Context(), userID, perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to list dreams",
			})
			return
		}

		out := make([]gin.H, 0, len(dreams))
		for _, d := range dreams {
			out = append(out, dreamJSON(d))
		}

		c.JSON(http.StatusOK, gin.H{
			"dreams": out,
			"pagination": gin.H{
				"page":    page,
				"perPage": perPage,
				"total":   total,
			},
		})
	}
}

// GetDreamHandler returns one dream with its photo links, recent jobs, and the
// images generated so far.
// GET /v1/dreams/:id
func (h *DreamHandlers) GetDreamHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		dream := h.ownedDream(c, c.Param("id"))
		if dream == nil {
			return
		}

		links, err := h.dreamRepo.GetDreamPhotoLinks(c.Request.Context(), dream.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to retrieve dream photos",
			})
			return
		}
		photos := make([]gin.H, 0, len(links))
		for _, link := range links {
			photos = append(photos, gin.H{
				"photoId": link.PhotoID,
				"role":    link.Role,
			})
		}

		jobs, err := h.jobRepo.ListJobsByDream(c.Request.Context(), dream.ID, 5)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to retrieve dream jobs",
			})
			return
		}
		jobsOut := make([]gin.H, 0, len(jobs))
		for _, j := range jobs {
			jobsOut = append(jobsOut, jobJSON(j))
		}

		assets, err := h.assetRepo.ListByDream(c.Request.Context(), dream.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to retrieve dream images",
			})
			return
		}
		images := make([]gin.H, 0, len(assets))
		for _, a := range assets {
			images = append(images, assetJSON(a))
		}

		c.JSON(http.StatusOK, gin.H{
			"dream":  dreamJSON(dream),
			"photos": photos,
			"jobs":   jobsOut,
			"images": images,
		})
	}
}

// UpdateDreamRequest carries a partial dream update. Nil fields are unchanged;
// a non-nil photos list replaces the links wholesale.
type UpdateDreamRequest struct {
	Title       *string      `json:"title"`
	Description *string      `json:"description"`
	Reject      []string     `json:"reject"`
	Style       *string      `json:"style"`
	Photos      *[]PhotoLink `json:"photos"`
}

// UpdateDreamHandler updates the editable fields of a dream.
// PUT /v1/dreams/:id
func (h *DreamHandlers) UpdateDreamHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateDreamRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "invalid request body",
			})
			return
		}

		dream := h.ownedDream(c, c.Param("id"))
		if dream == nil {
			return
		}

		if req.Title != nil {
			dream.Title = *req.Title
		}
		if req.Description != nil {
			if *req.Description == "" {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "description cannot be empty",
				})
				return
			}
			dream.Description = *req.Description
		}
		if req.Reject != nil {
			if err := dream.SetRejectTerms(req.Reject); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "invalid reject list",
				})
				return
			}
		}
		if req.Style != nil {
			dream.Style = req.Style
		}

		if err := h.dreamRepo.UpdateDream(c.Request.Context(), dream); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to update dream",
			})
			return
		}

		if req.Photos != nil {
			links := h.resolveLinks(c, dream.UserID, dream.ID, *req.Photos)
			if links == nil {
				return
			}
			if err := h.dreamRepo.SetDreamPhotos(c.Request.Context(), dream.ID, links); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "failed to link photos",
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"dream":   dreamJSON(dream),
		})
	}
}

// DeleteDreamHandler deletes a dream. Jobs, photo links, and generated images
// go with it via FK cascade; the photos themselves stay.
// DELETE /v1/dreams/:id
func (h *DreamHandlers) DeleteDreamHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		dream := h.ownedDream(c, c.Param("id"))
		if dream == nil {
			return
		}

		if err := h.dreamRepo.DeleteDream(c.Request.Context(), dream.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to delete dream",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
		})
	}
}
