// generation_job_repository.go implements GenerationJobRepository. Every transition
// into or out of a job status is a conditional update guarded on the current status,
// so duplicate webhooks, racing workers, and reaper sweeps cannot double-apply.
// Terminal transitions also move the owning dream out of the generating state in the
// same transaction.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oneira/oneira/internal/db/models"
)

// GenerationJobRepository handles generation job database operations
type GenerationJobRepository struct {
	db *sql.DB
}

// NewGenerationJobRepository creates a new GenerationJobRepository
func NewGenerationJobRepository(db *sql.DB) *GenerationJobRepository {
	return &GenerationJobRepository{db: db}
}

// CreateJob creates a new job in the queued state
func (r *GenerationJobRepository) CreateJob(ctx context.Context, job *models.GenerationJob) error {
	job.ID = uuid.New().String()
	job.CreatedAt = time.Now()
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}

	query := `
		INSERT INTO generation_jobs (id, dream_id, user_id, trace_id, status, progress, current_step, image_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		job.ID,
		job.DreamID,
		job.UserID,
		job.TraceID,
		job.Status,
		job.Progress,
		job.CurrentStep,
		job.ImageCount,
		job.CreatedAt,
	)

	return err
}

const jobColumns = `id, dream_id, user_id, trace_id, status, progress, current_step, error,
	       image_count, cost_eur, cost_details, created_at, started_at, completed_at`

func scanJob(scanner interface{ Scan(...interface{}) error }) (*models.GenerationJob, error) {
	job := &models.GenerationJob{}
	var costDetails []byte
	err := scanner.Scan(
		&job.ID,
		&job.DreamID,
		&job.UserID,
		&job.TraceID,
		&job.Status,
		&job.Progress,
		&job.CurrentStep,
		&job.Error,
		&job.ImageCount,
		&job.CostEUR,
		&costDetails,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(costDetails) > 0 {
		if err := json.Unmarshal(costDetails, &job.CostDetails); err != nil {
			return nil, err
		}
	}
	return job, nil
}

// GetJobByID retrieves a job by ID
func (r *GenerationJobRepository) GetJobByID(ctx context.Context, jobID string) (*models.GenerationJob, error) {
	query := `SELECT ` + jobColumns + ` FROM generation_jobs WHERE id = $1`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, jobID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// GetJobByTraceID retrieves a job by the trace id carried in webhook callbacks
func (r *GenerationJobRepository) GetJobByTraceID(ctx context.Context, traceID string) (*models.GenerationJob, error) {
	query := `SELECT ` + jobColumns + ` FROM generation_jobs WHERE trace_id = $1`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, traceID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobsByDream retrieves a dream's jobs, newest first
func (r *GenerationJobRepository) ListJobsByDream(ctx context.Context, dreamID string, limit int) ([]*models.GenerationJob, error) {
	query := `SELECT ` + jobColumns + `
		FROM generation_jobs
		WHERE dream_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	return r.queryJobs(ctx, query, dreamID, limit)
}

// ListJobs retrieves jobs with optional status and user filters, newest first, plus
// the total count for pagination
func (r *GenerationJobRepository) ListJobs(ctx context.Context, status, userID string, limit, offset int) ([]*models.GenerationJob, int, error) {
	baseWhere := ""
	args := []interface{}{}
	paramIndex := 1

	if status != "" {
		baseWhere += fmt.Sprintf(" AND status = $%d", paramIndex)
		args = append(args, status)
		paramIndex++
	}
	if userID != "" {
		baseWhere += fmt.Sprintf(" AND user_id = $%d", paramIndex)
		args = append(args, userID)
		paramIndex++
	}

	countQuery := `SELECT COUNT(*) FROM generation_jobs WHERE 1=1` + baseWhere
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + jobColumns + `
		FROM generation_jobs
		WHERE 1=1` + baseWhere + fmt.Sprintf(`
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	jobs, err := r.queryJobs(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func (r *GenerationJobRepository) queryJobs(ctx context.Context, query string, args ...interface{}) ([]*models.GenerationJob, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]*models.GenerationJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// CountJobsForUserSince counts a user's jobs created at or after the given instant.
// Used for the monthly generation quota; failed jobs count against it too.
func (r *GenerationJobRepository) CountJobsForUserSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var total int
	query := `SELECT COUNT(*) FROM generation_jobs WHERE user_id = $1 AND created_at >= $2`
	err := r.db.QueryRowContext(ctx, query, userID, since).Scan(&total)
	return total, err
}

// MarkRunning transitions a queued job to running. Returns false when the job was
// not in the queued state anymore — a webhook or the reaper got there first.
func (r *GenerationJobRepository) MarkRunning(ctx context.Context, jobID string) (bool, error) {
	query := `
		UPDATE generation_jobs
		SET status = $2, started_at = $3, progress = GREATEST(progress, 10), current_step = 'preparing'
		WHERE id = $1 AND status = $4
	`
	result, err := r.db.ExecContext(ctx, query, jobID, models.JobStatusRunning, time.Now(), models.JobStatusQueued)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// UpdateProgress advances a running job's progress. GREATEST keeps the value
// monotonic even if updates arrive out of order, and the status guard keeps terminal
// jobs untouched.
func (r *GenerationJobRepository) UpdateProgress(ctx context.Context, jobID string, progress int, step string) error {
	query := `
		UPDATE generation_jobs
		SET progress = GREATEST(progress, $2), current_step = $3
		WHERE id = $1 AND status = $4
	`
	_, err := r.db.ExecContext(ctx, query, jobID, progress, step, models.JobStatusRunning)
	return err
}

// MarkFailed transitions a non-terminal job to failed and records the error. The
// owning dream leaves the generating state in the same transaction: back to ready if
// it already has image assets, back to draft otherwise. Returns false when the job
// was already terminal.
func (r *GenerationJobRepository) MarkFailed(ctx context.Context, jobID, dreamID, errMsg string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback() // nolint:errcheck

	failJob := `
		UPDATE generation_jobs
		SET status = $2, error = $3, completed_at = $4
		WHERE id = $1 AND status IN ($5, $6)
	`
	result, err := tx.ExecContext(ctx, failJob,
		jobID,
		models.JobStatusFailed,
		errMsg,
		time.Now(),
		models.JobStatusQueued,
		models.JobStatusRunning,
	)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, nil
	}

	settleDream := `
		UPDATE dreams
		SET status = CASE
			WHEN EXISTS (SELECT 1 FROM image_assets WHERE dream_id = $1) THEN 'ready'
			ELSE 'draft'
		END, updated_at = $2
		WHERE id = $1 AND status = $3
	`
	if _, err := tx.ExecContext(ctx, settleDream, dreamID, time.Now(), models.DreamStatusGenerating); err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// CompleteSuccess applies a succeeded webhook in one transaction: the job moves to
// succeeded (conditional on being non-terminal), the payload's image assets are
// inserted, and the dream becomes ready. Returns false without side effects when the
// job was already terminal — the duplicate-delivery case.
func (r *GenerationJobRepository) CompleteSuccess(ctx context.Context, jobID, dreamID string, imageCount int, costEUR *float64, costDetails map[string]interface{}, assets []*models.ImageAsset) (bool, error) {
	var costDetailsJSON []byte
	if costDetails != nil {
		var err error
		costDetailsJSON, err = json.Marshal(costDetails)
		if err != nil {
			return false, fmt.Errorf("failed to marshal cost details: %w", err)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback() // nolint:errcheck

	completeJob := `
		UPDATE generation_jobs
		SET status = $2, progress = 100, current_step = 'done', image_count = $3,
		    cost_eur = $4, cost_details = $5, completed_at = $6
		WHERE id = $1 AND status IN ($7, $8)
	`
	result, err := tx.ExecContext(ctx, completeJob,
		jobID,
		models.JobStatusSucceeded,
		imageCount,
		costEUR,
		costDetailsJSON,
		time.Now(),
		models.JobStatusQueued,
		models.JobStatusRunning,
	)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, nil
	}

	insertAsset := `
		INSERT INTO image_assets (id, dream_id, job_id, url, width, height, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	now := time.Now()
	for _, asset := range assets {
		asset.ID = uuid.New().String()
		asset.CreatedAt = now
		_, err := tx.ExecContext(ctx, insertAsset,
			asset.ID,
			asset.DreamID,
			asset.JobID,
			asset.URL,
			asset.Width,
			asset.Height,
			asset.Source,
			asset.CreatedAt,
		)
		if err != nil {
			return false, fmt.Errorf("failed to insert image asset: %w", err)
		}
	}

	readyDream := `UPDATE dreams SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, readyDream, dreamID, models.DreamStatusReady, now); err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// ListStaleRunning retrieves running jobs that started before the cutoff
func (r *GenerationJobRepository) ListStaleRunning(ctx context.Context, cutoff time.Time, limit int) ([]*models.GenerationJob, error) {
	query := `SELECT ` + jobColumns + `
		FROM generation_jobs
		WHERE status = $1 AND started_at < $2
		ORDER BY started_at
		LIMIT $3`

	return r.queryJobs(ctx, query, models.JobStatusRunning, cutoff, limit)
}

// ListStaleQueued retrieves queued jobs created before the cutoff
func (r *GenerationJobRepository) ListStaleQueued(ctx context.Context, cutoff time.Time, limit int) ([]*models.GenerationJob, error) {
	query := `SELECT ` + jobColumns + `
		FROM generation_jobs
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at
		LIMIT $3`

	return r.queryJobs(ctx, query, models.JobStatusQueued, cutoff, limit)
}
