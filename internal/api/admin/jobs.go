package admin

import (
	"database/sql"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oneira/oneira/internal/config"
	"github.com/oneira/oneira/internal/db/models"
	"github.com/oneira/oneira/internal/db/repositories"
)

// JobHandlers contains handlers for browsing generation jobs
type JobHandlers struct {
	cfg     *config.Config
	jobRepo *repositories.GenerationJobRepository
}

// NewJobHandlers creates job admin handlers with their dependencies
func NewJobHandlers(cfg *config.Config, db *sql.DB) *JobHandlers {
	return &JobHandlers{
		cfg:     cfg,
		jobRepo: repositories.NewGenerationJobRepository(db),
	}
}

// adminJobJSON includes the engine cost fields the user-facing view omits.
func adminJobJSON(job *models.GenerationJob) gin.H {
	return gin.H{
		"id":          job.ID,
		"dreamId":     job.DreamID,
		"userId":      job.UserID,
		"traceId":     job.TraceID,
		"status":      job.Status,
		"progress":    job.Progress,
		"currentStep": job.CurrentStep,
		"error":       job.Error,
		"imageCount":  job.ImageCount,
		"costEur":     job.CostEUR,
		"costDetails": job.CostDetails,
		"createdAt":   job.CreatedAt,
		"startedAt":   job.StartedAt,
		"completedAt": job.CompletedAt,
	}
}

// ListJobsHandler lists generation jobs across all users, newest first,
// optionally filtered by status and user
// GET /v1/admin/jobs?status=failed&userId=...&page=1&perPage=20
func (h *JobHandlers) ListJobsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := c.Query("status")
		switch models.JobStatus(status) {
		case "", models.JobStatusQueued, models.JobStatusRunning,
			models.JobStatusSucceeded, models.JobStatusFailed:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown job status"})
			return
		}

		page, perPage, offset := pagination(c)
		jobs, total, err := h.jobRepo.ListJobs(c.Request.Context(), status, c.Query("userId"), perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
			return
		}

		out := make([]gin.H, 0, len(jobs))
		for _, job := range jobs {
			out = append(out, adminJobJSON(job))
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
