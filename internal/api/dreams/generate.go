// generate.go implements the generation trigger and the job polling surface.
// The trigger replies 202 as soon as the job row exists and the work item is
// queued; everything after that is visible only through job state.
package dreams

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/oneira/oneira/internal/billing"
	"github.com/oneira/oneira/internal/db/models"
	"github.com/oneira/oneira/internal/middleware"
	"github.com/oneira/oneira/internal/telemetry"
)

// jobJSON shapes a generation job for API responses.
func jobJSON(j *models.GenerationJob) gin.H {
	return gin.H{
		"id":          j.ID,
		"dreamId":     j.DreamID,
		"traceId":     j.TraceID,
		"status":      j.Status,
		"progress":    j.Progress,
		"currentStep": j.CurrentStep,
		"error":       j.Error,
		"imageCount":  j.ImageCount,
		"createdAt":   j.CreatedAt,
		"startedAt":   j.StartedAt,
		"completedAt": j.CompletedAt,
	}
}

// assetJSON shapes a generated image for API responses.
func assetJSON(a *models.ImageAsset) gin.H {
	return gin.H{
		"id":        a.ID,
		"jobId":     a.JobID,
		"url":       a.URL,
		"width":     a.Width,
		"height":    a.Height,
		"source":    a.Source,
		"createdAt": a.CreatedAt,
	}
}

// GenerateHandler starts a generation run for a dream. The trace id is minted
// here, before anything leaves the process, so the webhook always has a row to
// land on. Replies 202; failures past this point only ever show up in the job.
// POST /v1/dreams/:id/generate
func (h *DreamHandlers) GenerateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		dream := h.ownedDream(c, c.Param("id"))
		if dream == nil {
			return
		}

		user := middleware.CurrentUser(c)
		if err := h.quota.CheckGeneration(c.Request.Context(), user); err != nil {
			if errors.Is(err, billing.ErrQuotaExceeded) {
				c.JSON(http.StatusTooManyRequests, gin.H{
					"error": "monthly generation quota exceeded",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to check quota",
			})
			return
		}

		// A dream with nothing to render would only fail later inside the
		// worker; reject it here where the caller can still see why. The
		// orchestrator re-checks at dispatch because photos can be disabled
		// in between.
		photos, err := h.dreamRepo.ListEnabledDreamPhotos(c.Request.Context(), dream.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to resolve dream photos",
			})
			return
		}
		if len(photos) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "dream has no enabled photos",
			})
			return
		}

		job := &models.GenerationJob{
			DreamID:     dream.ID,
			UserID:      user.ID,
			TraceID:     uuid.New().String(),
			Status:      models.JobStatusQueued,
			CurrentStep: "queued",
		}
		if err := h.jobRepo.CreateJob(c.Request.Context(), job); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to create generation job",
			})
			return
		}

		if err := h.dreamRepo.SetGenerating(c.Request.Context(), dream.ID, job.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to update dream state",
			})
			return
		}

		telemetry.GenerationJobsTotal.WithLabelValues(string(models.JobStatusQueued)).Inc()
		h.orchestrator.Trigger(c.Request.Context(), job)

		c.JSON(http.StatusAccepted, gin.H{
			"success": true,
			"job": gin.H{
				"id":                job.ID,
				"traceId":           job.TraceID,
				"status":            job.Status,
				"estimatedDuration": h.cfg.Generation.EstimatedDurationSecs,
			},
		})
	}
}

// GetJobHandler returns one job of a dream. Clients poll this: async generation
// errors are only ever visible here, never on the triggering request. Succeeded
// jobs carry their images so the final poll needs no second round trip.
// GET /v1/dreams/:id/jobs/:jobId
func (h *DreamHandlers) GetJobHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		dream := h.ownedDream(c, c.Param("id"))
		if dream == nil {
			return
		}

		job, err := h.jobRepo.GetJobByID(c.Request.Context(), c.Param("jobId"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to retrieve job",
			})
			return
		}
		if job == nil || job.DreamID != dream.ID {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "job not found",
			})
			return
		}

		out := jobJSON(job)
		if job.Status == models.JobStatusSucceeded {
			assets, err := h.assetRepo.ListByJob(c.Request.Context(), job.ID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "failed to retrieve job images",
				})
				return
			}
			images := make([]gin.H, 0, len(assets))
			for _, a := range assets {
				images = append(images, assetJSON(a))
			}
			out["images"] = images
		}

		c.JSON(http.StatusOK, gin.H{
			"job": out,
		})
	}
}

// ListMyJobsHandler lists the caller's jobs across all dreams, newest first,
// optionally filtered by status.
// GET /v1/me/jobs?status=running&page=1&perPage=20
func (h *DreamHandlers) ListMyJobsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("perPage", "20"))

		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 100 {
			perPage = 20
		}

		status := c.Query("status")
		if status != "" {
			switch models.JobStatus(status) {
			case models.JobStatusQueued, models.JobStatusRunning, models.JobStatusSucceeded, models.JobStatusFailed:
			default:
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "unknown job status",
				})
				return
			}
		}

		offset := (page - 1) * perPage
		userID := middleware.CurrentUserID(c)

		jobs, total, err := h.jobRepo.ListJobs(c.Request.Context(), status, userID, perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to list jobs",
			})
			return
		}

		out := make([]gin.H, 0, len(jobs))
		for _, j := range jobs {
			out = append(out, jobJSON(j))
		}

		c.JSON(http.StatusOK, gin.H{
			"jobs": out,
			"pagination": gin.H{
				"page":    page,
				"perPage": perPage,
				"total":   total,
			},
		})
	}
}
