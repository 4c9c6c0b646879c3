// Package photos implements the photo endpoints: multipart upload with
// server-side validation and thumbnailing, listing with signed download URLs,
// enable/disable, and deletion. Originals and thumbnails live in the object
// storage backend; only metadata is kept in Postgres.
package photos

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/oneira/oneira/internal/billing"
	"github.com/oneira/oneira/internal/config"
	"github.com/oneira/oneira/internal/db/models"
	"github.com/oneira/oneira/internal/db/repositories"
	"github.com/oneira/oneira/internal/middleware"
	photoproc "github.com/oneira/oneira/internal/photos"
	"github.com/oneira/oneira/internal/storage"
	"github.com/oneira/oneira/internal/telemetry"
	"github.com/oneira/oneira/internal/validation"
)

// maxFilesPerUpload caps a single multipart request. Plan quotas still apply
// per stored photo; this only bounds request size and processing time.
const maxFilesPerUpload = 10

// photoURLTTL is the validity window of signed URLs handed to clients. URLs
// minted for the generation engine use the engine's own TTL, not this one.
const photoURLTTL = time.Hour

// PhotoHandlers contains handlers for uploading and managing source photos
type PhotoHandlers struct {
	cfg       *config.Config
	photoRepo *repositories.PhotoRepository
	quota     *billing.Quota
	store     storage.Storage
	processor *photoproc.Processor
}

// NewPhotoHandlers creates photo handlers with their dependencies
func NewPhotoHandlers(cfg *config.Config, db *sql.DB, store storage.Storage, quota *billing.Quota) *PhotoHandlers {
	return &PhotoHandlers{
		cfg:       cfg,
		photoRepo: repositories.NewPhotoRepository(db),
		quota:     quota,
		store:     store,
		processor: photoproc.NewProcessor(cfg.Photos.ThumbnailPx),
	}
}

// photoJSON shapes a photo for API responses, attaching signed download URLs
// for the original and the thumbnail. Storage keys never leave the server.
func (h *PhotoHandlers) photoJSON(c *gin.Context, p *models.Photo) (gin.H, error) {
	url, err := h.store.GetURL(c.Request.Context(), p.StorageKey, photoURLTTL)
	if err != nil {
		return nil, err
	}
	out := gin.H{
		"id":          p.ID,
		"kind":        p.Kind,
		"contentType": p.ContentType,
		"width":       p.Width,
		"height":      p.Height,
		"sizeBytes":   p.SizeBytes,
		"isReference": p.IsReference,
		"enabled":     p.Enabled,
		"createdAt":   p.CreatedAt,
		"url":         url,
	}
	if p.ThumbnailKey != nil {
		thumbURL, err := h.store.GetURL(c.Request.Context(), *p.ThumbnailKey, photoURLTTL)
		if err != nil {
			return nil, err
		}
		out["thumbnailUrl"] = thumbURL
	}
	return out, nil
}

// ownedPhoto loads the photo in the :id route parameter and verifies it
// belongs to the authenticated user. On failure it writes the error response
// and returns nil. Photos of other users read as not found.
func (h *PhotoHandlers) ownedPhoto(c *gin.Context) *models.Photo {
	user := middleware.CurrentUser(c)
	photo, err := h.photoRepo.GetPhotoByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load photo"})
		return nil
	}
	if photo == nil || photo.UserID != user.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
		return nil
	}
	return photo
}

func readMultipartFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// UploadHandler stores one or more photos from a multipart form. Files go in
// the "photos" field; an optional "kind" value marks webcam captures. Files
// are processed in order and the request fails on the first bad file; files
// already stored by then remain stored.
// POST /v1/photos
func (h *PhotoHandlers) UploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		ctx := c.Request.Context()

		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "request is not valid multipart form data"})
			return
		}
		files := form.File["photos"]
		if len(files) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no files in field \"photos\""})
			return
		}
		if len(files) > maxFilesPerUpload {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("too many files: at most %d per request", maxFilesPerUpload)})
			return
		}

		kind := c.PostForm("kind")
		if kind == "" {
			kind = models.PhotoKindUpload
		}
		if kind != models.PhotoKindWebcam && kind != models.PhotoKindUpload {
			c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be \"webcam\" or \"upload\""})
			return
		}

		hasRef, err := h.photoRepo.HasWebcamReference(ctx, user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check reference photo"})
			return
		}
		if kind == models.PhotoKindUpload && !hasRef {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "a webcam reference photo is required before uploading",
				"code":  "MISSING_WEBCAM_REFERENCE",
			})
			return
		}

		maxBytes := int64(h.cfg.Photos.MaxUploadMB) << 20
		stored := make([]gin.H, 0, len(files))

		for _, fh := range files {
			// Re-checked per file so a batch cannot overshoot the plan cap:
			// each stored photo is visible to the next check.
			if err := h.quota.CheckPhotoUpload(ctx, user); err != nil {
				if errors.Is(err, billing.ErrPhotoLimitReached) {
					c.JSON(http.StatusTooManyRequests, gin.H{"error": "photo limit reached for plan"})
					return
				}
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check photo quota"})
				return
			}

			data, err := readMultipartFile(fh)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: failed to read uploaded file", fh.Filename)})
				return
			}
			contentType, err := validation.ValidateImage(data, maxBytes)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", fh.Filename, err)})
				return
			}
			processed, err := h.processor.Process(data)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: could not decode image", fh.Filename)})
				return
			}

			photoID := uuid.New().String()
			origKey := photoproc.OriginalKey(user.ID, photoID, contentType)
			thumbKey := photoproc.ThumbnailKey(user.ID, photoID)
			if _, err := h.store.Upload(ctx, origKey, bytes.NewReader(data), int64(len(data))); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store photo"})
				return
			}
			if _, err := h.store.Upload(ctx, thumbKey, bytes.NewReader(processed.Thumbnail), int64(len(processed.Thumbnail))); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store thumbnail"})
				return
			}

			photo := &models.Photo{
				ID:           photoID,
				UserID:       user.ID,
				Kind:         kind,
				StorageKey:   origKey,
				ThumbnailKey: &thumbKey,
				ContentType:  contentType,
				Width:        processed.Width,
				Height:       processed.Height,
				SizeBytes:    int64(len(data)),
				Checksum:     processed.Checksum,
				IsReference:  kind == models.PhotoKindWebcam && !hasRef,
				Enabled:      true,
			}
			if err := h.photoRepo.CreatePhoto(ctx, photo); err != nil {
				if derr := h.store.DeletePrefix(ctx, photoproc.StoragePrefix(user.ID, photoID)); derr != nil {
					slog.Warn("failed to clean up photo objects after insert failure", "photo_id", photoID, "error", derr)
				}
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save photo"})
				return
			}
			if photo.IsReference {
				hasRef = true
			}
			telemetry.PhotoUploadsTotal.WithLabelValues(kind).Inc()

			out, err := h.photoJSON(c, photo)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign photo url"})
				return
			}
			stored = append(stored, out)
		}

		c.JSON(http.StatusCreated, gin.H{
			"success": true,
			"photos":  stored,
		})
	}
}

// ListPhotosHandler returns all photos of the authenticated user, newest
// first, with signed download URLs. hasReference tells the client whether
// the webcam capture step may be skipped.
// GET /v1/photos
func (h *PhotoHandlers) ListPhotosHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)

		photos, err := h.photoRepo.ListPhotosByUser(c.Request.Context(), user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list photos"})
			return
		}

		hasRef := false
		out := make([]gin.H, 0, len(photos))
		for _, p := range photos {
			if p.IsReference {
				hasRef = true
			}
			pj, err := h.photoJSON(c, p)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign photo url"})
				return
			}
			out = append(out, pj)
		}

		c.JSON(http.StatusOK, gin.H{
			"photos":       out,
			"hasReference": hasRef,
		})
	}
}

// GetPhotoHandler returns a single photo owned by the authenticated user
// GET /v1/photos/:id
func (h *PhotoHandlers) GetPhotoHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		photo := h.ownedPhoto(c)
		if photo == nil {
			return
		}
		out, err := h.photoJSON(c, photo)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign photo url"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"photo": out})
	}
}

// SetEnabledRequest toggles a photo's participation in generation
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetEnabledHandler enables or disables a photo. Disabled photos stay stored
// and listed but are excluded from generation dispatch.
// PUT /v1/photos/:id/enabled
func (h *PhotoHandlers) SetEnabledHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		photo := h.ownedPhoto(c)
		if photo == nil {
			return
		}

		var req SetEnabledRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "enabled field is required"})
			return
		}

		if err := h.photoRepo.SetEnabled(c.Request.Context(), photo.ID, *req.Enabled); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update photo"})
			return
		}

		photo.Enabled = *req.Enabled
		out, err := h.photoJSON(c, photo)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign photo url"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "photo": out})
	}
}

// DeletePhotoHandler removes a photo, its thumbnail, and its metadata row.
// Storage deletion is best effort; a dangling object without a row is
// harmless and invisible to clients.
// DELETE /v1/photos/:id
func (h *PhotoHandlers) DeletePhotoHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		photo := h.ownedPhoto(c)
		if photo == nil {
			return
		}
		ctx := c.Request.Context()

		if err := h.store.DeletePrefix(ctx, photoproc.StoragePrefix(photo.UserID, photo.ID)); err != nil {
			slog.Warn("failed to delete photo objects", "photo_id", photo.ID, "error", err)
		}
		if err := h.photoRepo.DeletePhoto(ctx, photo.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete photo"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
