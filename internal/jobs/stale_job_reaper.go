// stale_job_reaper.go implements the StaleJobReaper background job, which
// periodically fails generation jobs stuck in a non-terminal state: running
// jobs whose webhook never arrived (engine crash, lost callback) and queued
// jobs no worker picked up (process restart emptied the in-memory queue).
// Every reap is a conditional transition, so a webhook landing mid-sweep wins
// and the reap becomes a no-op.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oneira/oneira/internal/config"
	"github.com/oneira/oneira/internal/db/models"
	"github.com/oneira/oneira/internal/db/repositories"
	"github.com/oneira/oneira/internal/telemetry"
)

// reapBatchLimit caps how many stale jobs one sweep handles per state. A
// backlog larger than this drains over consecutive sweeps.
const reapBatchLimit = 100

// StaleJobReaper periodically fails generation jobs that outlived their state timeout.
type StaleJobReaper struct {
	jobRepo        *repositories.GenerationJobRepository
	runningTimeout time.Duration
	queuedTimeout  time.Duration
	interval       time.Duration
	stopChan       chan struct{}
}

// NewStaleJobReaper creates a new StaleJobReaper from the generation config.
func NewStaleJobReaper(jobRepo *repositories.GenerationJobRepository, cfg *config.GenerationConfig) *StaleJobReaper {
	runningTimeout := cfg.RunningTimeout
	if runningTimeout <= 0 {
		runningTimeout = 30 * time.Minute
	}
	queuedTimeout := cfg.QueuedTimeout
	if queuedTimeout <= 0 {
		queuedTimeout = 10 * time.Minute
	}
	interval := cfg.ReaperInterval
	if interval <= 0 {
		interval = time.Minute
	}

	return &StaleJobReaper{
		jobRepo:        jobRepo,
		runningTimeout: runningTimeout,
		queuedTimeout:  queuedTimeout,
		interval:       interval,
		stopChan:       make(chan struct{}),
	}
}

// Start begins the background sweep loop. It runs an initial sweep immediately
// so jobs orphaned by a crash are failed right after restart, then repeats on
// the configured interval. The loop exits when ctx is cancelled or Stop is called.
func (r *StaleJobReaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("stale job reaper started",
		"interval", r.interval, "running_timeout", r.runningTimeout, "queued_timeout", r.queuedTimeout)

	r.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			r.sweep(ctx)
		case <-r.stopChan:
			slog.Info("stale job reaper stopped")
			return
		case <-ctx.Done():
			slog.Info("stale job reaper context cancelled")
			return
		}
	}
}

// Stop signals the background loop to exit.
func (r *StaleJobReaper) Stop() {
	close(r.stopChan)
}

// sweep fails jobs running or queued past their timeout.
func (r *StaleJobReaper) sweep(ctx context.Context) {
	now := time.Now()

	stale, err := r.jobRepo.ListStaleRunning(ctx, now.Add(-r.runningTimeout), reapBatchLimit)
	if err != nil {
		slog.Error("reaper failed to list stale running jobs", "error", err)
	} else {
		r.reap(ctx, stale, fmt.Sprintf("timed out after running for more than %s", r.runningTimeout))
	}

	staleQueued, err := r.jobRepo.ListStaleQueued(ctx, now.Add(-r.queuedTimeout), reapBatchLimit)
	if err != nil {
		slog.Error("reaper failed to list stale queued jobs", "error", err)
		return
	}
	r.reap(ctx, staleQueued, fmt.Sprintf("timed out after waiting in queue for more than %s", r.queuedTimeout))
}

func (r *StaleJobReaper) reap(ctx context.Context, jobs []*models.GenerationJob, reason string) {
	for _, job := range jobs {
		applied, err := r.jobRepo.MarkFailed(ctx, job.ID, job.DreamID, reason)
		if err != nil {
			slog.Error("reaper failed to fail stale job", "job_id", job.ID, "error", err)
			continue
		}
		if !applied {
			// A webhook terminated the job between the list and the transition.
			continue
		}
		telemetry.GenerationJobsTotal.WithLabelValues(string(models.JobStatusFailed)).Inc()
		slog.Warn("reaped stale generation job",
			"job_id", job.ID, "trace_id", job.TraceID, "status", job.Status, "reason", reason)
	}
}
