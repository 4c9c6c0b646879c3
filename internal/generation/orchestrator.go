// Package generation implements the job orchestrator: an in-process dispatch
// queue drained by a fixed worker pool, the engine dispatch path, and the
// webhook entry point that applies terminal transitions. Every status change
// is a conditional update in the repository layer, so a webhook racing an
// in-flight dispatch (or a duplicate delivery) resolves to exactly one
// terminal state and a job can never silently stick in queued or running.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oneira/oneira/internal/config"
	"github.com/oneira/oneira/internal/db/models"
	"github.com/oneira/oneira/internal/db/repositories"
	"github.com/oneira/oneira/internal/engine"
	"github.com/oneira/oneira/internal/storage"
	"github.com/oneira/oneira/internal/telemetry"
)

// Sentinel errors surfaced to the webhook HTTP handler for status mapping.
var (
	// ErrJobNotFound means no job carries the webhook's trace id.
	ErrJobNotFound = errors.New("no job for trace id")
	// ErrUnknownStatus means the webhook carried a status other than succeeded/failed.
	ErrUnknownStatus = errors.New("unknown webhook status")
)

// Outcome classifies what a webhook delivery did, for the delivery log and metrics.
type Outcome string

// Webhook outcomes.
const (
	OutcomeCompleted Outcome = "completed" // job transitioned to succeeded
	OutcomeFailed    Outcome = "failed"    // job transitioned to failed
	OutcomeSkipped   Outcome = "skipped"   // job already terminal, delivery was a duplicate
)

// EngineImage is one generated image reported in a succeeded callback.
type EngineImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// EngineResult is the payload of an engine completion callback.
type EngineResult struct {
	Images      []EngineImage          `json:"images"`
	Error       string                 `json:"error"`
	CostEUR     *float64               `json:"costEur"`
	CostDetails map[string]interface{} `json:"costDetails"`
}

// Orchestrator drives generation jobs from trigger through engine dispatch to
// their webhook-delivered terminal state.
type Orchestrator struct {
	jobs   *repositories.GenerationJobRepository
	dreams *repositories.DreamRepository
	audits *repositories.AuditRepository
	store  storage.Storage
	engine *engine.Client

	workers     int
	imagesCount int
	urlTTL      time.Duration

	queue    chan string
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewOrchestrator creates an orchestrator. Queue and pool sizes come from the
// generation config; signedURLTTL bounds how long the engine can fetch the
// photo URLs handed to it.
func NewOrchestrator(
	jobRepo *repositories.GenerationJobRepository,
	dreamRepo *repositories.DreamRepository,
	auditRepo *repositories.AuditRepository,
	store storage.Storage,
	engineClient *engine.Client,
	cfg *config.GenerationConfig,
	signedURLTTL time.Duration,
) *Orchestrator {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	imagesCount := cfg.ImagesCount
	if imagesCount <= 0 {
		imagesCount = 4
	}

	return &Orchestrator{
		jobs:        jobRepo,
		dreams:      dreamRepo,
		audits:      auditRepo,
		store:       store,
		engine:      engineClient,
		workers:     workers,
		imagesCount: imagesCount,
		urlTTL:      signedURLTTL,
		queue:       make(chan string, queueSize),
		stopChan:    make(chan struct{}),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled or Stop
// is called.
func (o *Orchestrator) Start(ctx context.Context) {
	for i := 0; i < o.workers; i++ {
		o.wg.Add(1)
		go o.worker(ctx)
	}
	slog.Info("generation orchestrator started", "workers", o.workers, "queue_size", cap(o.queue))
}

// Stop signals the workers to exit and waits for in-flight jobs to finish
// their current dispatch. Jobs still sitting in the queue stay queued and are
// swept by the reaper if no restart picks them up in time.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		close(o.stopChan)
	})
	o.wg.Wait()
	slog.Info("generation orchestrator stopped")
}

// Trigger enqueues a freshly created job for dispatch without blocking the
// caller. When the queue is full the job is conditionally failed on the spot
// so it cannot sit in queued with nothing draining it; the client discovers
// the failure through the polling surface.
func (o *Orchestrator) Trigger(ctx context.Context, job *models.GenerationJob) {
	select {
	case o.queue <- job.ID:
		telemetry.GenerationQueueDepth.Set(float64(len(o.queue)))
	default:
		telemetry.GenerationQueueDropsTotal.Inc()
		slog.Warn("generation queue full, failing job",
			"job_id", job.ID, "dream_id", job.DreamID, "queue_size", cap(o.queue))
		applied, err := o.jobs.MarkFailed(ctx, job.ID, job.DreamID, "generation queue full, try again later")
		if err != nil {
			slog.Error("failed to fail dropped job", "job_id", job.ID, "error", err)
			return
		}
		if applied {
			telemetry.GenerationJobsTotal.WithLabelValues(string(models.JobStatusFailed)).Inc()
		}
	}
}

func (o *Orchestrator) worker(ctx context.Context) {
	defer o.wg.Done()
	for {
		select {
		case jobID := <-o.queue:
			telemetry.GenerationQueueDepth.Set(float64(len(o.queue)))
			o.runJob(ctx, jobID)
		case <-o.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// runJob wraps process with a per-job panic recovery, so a fault in the
// dispatch path fails that one job instead of killing the worker.
func (o *Orchestrator) runJob(ctx context.Context, jobID string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while processing generation job", "job_id", jobID, "panic", r)
			o.recoverFailed(ctx, jobID, fmt.Sprintf("internal error: %v", r))
		}
	}()
	o.process(ctx, jobID)
}

// recoverFailed loads the job to learn its dream and marks it failed. Used
// from the panic path where no job object is in scope.
func (o *Orchestrator) recoverFailed(ctx context.Context, jobID, errMsg string) {
	job, err := o.jobs.GetJobByID(ctx, jobID)
	if err != nil || job == nil {
		slog.Error("cannot fail panicked job", "job_id", jobID, "error", err)
		return
	}
	o.failJob(ctx, job, errMsg)
}

// failJob applies a conditional failed transition and records the metric when
// it lands. A lost race (job already terminal) is logged and otherwise ignored.
func (o *Orchestrator) failJob(ctx context.Context, job *models.GenerationJob, errMsg string) {
	applied, err := o.jobs.MarkFailed(ctx, job.ID, job.DreamID, errMsg)
	if err != nil {
		slog.Error("failed to mark job failed", "job_id", job.ID, "error", err)
		return
	}
	if !applied {
		slog.Info("job already terminal, failure not applied", "job_id", job.ID)
		return
	}
	telemetry.GenerationJobsTotal.WithLabelValues(string(models.JobStatusFailed)).Inc()
	slog.Warn("generation job failed", "job_id", job.ID, "trace_id", job.TraceID, "error", errMsg)
}

// process performs the dispatch path for one queued job: load job, dream, and
// enabled photos, take the queued→running transition, sign photo URLs, and
// POST the request to the engine. Completion is deferred to the webhook; a
// dispatch that the engine accepted only advances progress.
func (o *Orchestrator) process(ctx context.Context, jobID string) {
	job, err := o.jobs.GetJobByID(ctx, jobID)
	if err != nil {
		slog.Error("failed to load queued job", "job_id", jobID, "error", err)
		return
	}
	if job == nil {
		slog.Warn("queued job vanished before dispatch", "job_id", jobID)
		return
	}
	if job.Status.IsTerminal() {
		// A webhook or the reaper terminated the job before dispatch.
		slog.Info("skipping dispatch of terminal job", "job_id", jobID, "status", job.Status)
		return
	}

	dream, err := o.dreams.GetDreamByID(ctx, job.DreamID)
	if err != nil {
		o.failJob(ctx, job, fmt.Sprintf("failed to load dream: %v", err))
		return
	}
	if dream == nil {
		o.failJob(ctx, job, "dream no longer exists")
		return
	}

	photos, err := o.dreams.ListEnabledDreamPhotos(ctx, job.DreamID)
	if err != nil {
		o.failJob(ctx, job, fmt.Sprintf("failed to load dream photos: %v", err))
		return
	}
	if len(photos) == 0 {
		o.failJob(ctx, job, "dream has no enabled photos")
		return
	}

	applied, err := o.jobs.MarkRunning(ctx, job.ID)
	if err != nil {
		o.failJob(ctx, job, fmt.Sprintf("failed to mark job running: %v", err))
		return
	}
	if !applied {
		slog.Info("job no longer queued, skipping dispatch", "job_id", job.ID)
		return
	}

	refs := make([]engine.PhotoRef, 0, len(photos))
	for _, photo := range photos {
		url, err := o.store.GetURL(ctx, photo.StorageKey, o.urlTTL)
		if err != nil {
			o.failJob(ctx, job, fmt.Sprintf("failed to sign photo url: %v", err))
			return
		}
		refs = append(refs, engine.PhotoRef{ID: photo.ID, URL: url})
	}

	reject, err := dream.RejectTerms()
	if err != nil {
		o.failJob(ctx, job, fmt.Sprintf("corrupt reject list: %v", err))
		return
	}

	slog.Info("dispatching generation job",
		"job_id", job.ID, "trace_id", job.TraceID, "dream_id", dream.ID, "photos", len(refs))

	err = o.engine.Dispatch(ctx, &engine.DispatchRequest{
		TraceID: job.TraceID,
		Dream: engine.DreamSpec{
			Description: dream.Description,
			Reject:      reject,
		},
		UserPhotos: refs,
		Options:    engine.Options{ImagesCount: o.imagesCount},
	})
	if err != nil {
		o.failJob(ctx, job, err.Error())
		return
	}

	// Accepted. The engine generates behind its own queue and reports back via
	// webhook; until then the job shows coarse progress.
	if err := o.jobs.UpdateProgress(ctx, job.ID, 50, "generating"); err != nil {
		slog.Warn("failed to update job progress after dispatch", "job_id", job.ID, "error", err)
	}
}

// HandleWebhook applies an engine completion callback. The trace id is the
// only correlation key; job ids never leave the API surface toward the engine.
// Duplicate deliveries of a terminal job return OutcomeSkipped without side
// effects, which the HTTP layer answers with a 200.
func (o *Orchestrator) HandleWebhook(ctx context.Context, traceID, status string, result *EngineResult) (Outcome, error) {
	job, err := o.jobs.GetJobByTraceID(ctx, traceID)
	if err != nil {
		return "", fmt.Errorf("failed to look up job by trace id: %w", err)
	}
	if job == nil {
		return "", ErrJobNotFound
	}
	if result == nil {
		result = &EngineResult{}
	}

	switch models.JobStatus(status) {
	case models.JobStatusFailed:
		errMsg := result.Error
		if errMsg == "" {
			errMsg = "generation failed"
		}
		applied, err := o.jobs.MarkFailed(ctx, job.ID, job.DreamID, errMsg)
		if err != nil {
			return "", fmt.Errorf("failed to apply failed transition: %w", err)
		}
		if !applied {
			slog.Info("duplicate failure webhook for terminal job", "job_id", job.ID, "trace_id", traceID)
			return OutcomeSkipped, nil
		}
		telemetry.GenerationJobsTotal.WithLabelValues(string(models.JobStatusFailed)).Inc()
		slog.Warn("generation job failed by engine", "job_id", job.ID, "trace_id", traceID, "error", errMsg)
		return OutcomeFailed, nil

	case models.JobStatusSucceeded:
		assets := make([]*models.ImageAsset, 0, len(result.Images))
		for _, img := range result.Images {
			assets = append(assets, &models.ImageAsset{
				DreamID: job.DreamID,
				JobID:   job.ID,
				URL:     img.URL,
				Width:   img.Width,
				Height:  img.Height,
				Source:  models.ImageSourceAI,
			})
		}

		applied, err := o.jobs.CompleteSuccess(ctx, job.ID, job.DreamID, len(assets), result.CostEUR, result.CostDetails, assets)
		if err != nil {
			return "", fmt.Errorf("failed to apply succeeded transition: %w", err)
		}
		if !applied {
			slog.Info("duplicate success webhook for terminal job", "job_id", job.ID, "trace_id", traceID)
			return OutcomeSkipped, nil
		}
		telemetry.GenerationJobsTotal.WithLabelValues(string(models.JobStatusSucceeded)).Inc()
		slog.Info("generation job succeeded",
			"job_id", job.ID, "trace_id", traceID, "images", len(assets))
		o.auditCompletion(ctx, job, len(assets), result.CostEUR)
		return OutcomeCompleted, nil

	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
}

// auditCompletion records the success in the audit trail. Failures here are
// logged, not propagated; the transition already committed.
func (o *Orchestrator) auditCompletion(ctx context.Context, job *models.GenerationJob, imageCount int, costEUR *float64) {
	resourceType := "generation_job"
	metadata := map[string]interface{}{
		"trace_id":    job.TraceID,
		"dream_id":    job.DreamID,
		"image_count": imageCount,
	}
	if costEUR != nil {
		metadata["cost_eur"] = *costEUR
	}
	entry := &models.AuditLog{
		UserID:       &job.UserID,
		Action:       "generation.complete",
		ResourceType: &resourceType,
		ResourceID:   &job.ID,
		Metadata:     metadata,
	}
	if err := o.audits.CreateAuditLog(ctx, entry); err != nil {
		slog.Warn("failed to write generation audit entry", "job_id", job.ID, "error", err)
	}
}
