package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/oneira/oneira/internal/db/models"
)

var jobCols = []string{
	"id", "dream_id", "user_id", "trace_id", "status", "progress", "current_step", "error",
	"image_count", "cost_eur", "cost_details", "created_at", "started_at", "completed_at",
}

func sampleJobRow() *sqlmock.Rows {
	return sqlmock.NewRows(jobCols).
		AddRow("job-1", "dream-1", "user-1", "trace-1", "queued", 0, "", nil,
			4, nil, nil, time.Now(), nil, nil)
}

func succeededJobRow() *sqlmock.Rows {
	now := time.Now()
	cost := 0.42
	return sqlmock.NewRows(jobCols).
		AddRow("job-1", "dream-1", "user-1", "trace-1", "succeeded", 100, "done", nil,
			4, cost, []byte(`{"model":"sd-xl","steps":30}`), now, now, now)
}

func newJobRepo(t *testing.T) (*GenerationJobRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewGenerationJobRepository(db), mock
}

// ---------------------------------------------------------------------------
// CreateJob
// ---------------------------------------------------------------------------

func TestCreateJob_Success(t *testing.T) {
	repo, mock := newJobRepo(t)
	mock.ExpectExec("INSERT INTO generation_jobs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	job := &models.GenerationJob{DreamID: "dream-1", UserID: "user-1", TraceID: "trace-1", ImageCount: 4}
	if err := repo.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.ID == "" {
		t.Error("expected ID to be set")
	}
	if job.Status != models.JobStatusQueued {
		t.Errorf("Status = %s, want queued", job.Status)
	}
}

func TestCreateJob_DBError(t *testing.T) {
	repo, mock := newJobRepo(t)
	mock.ExpectExec("INSERT INTO generation_jobs").
		WillReturnError(errDB)

	job := &models.GenerationJob{DreamID: "dream-1", UserID: "user-1", TraceID: "trace-1"}
	if err := repo.CreateJob(context.Background(), job); err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// GetJobByID / GetJobByTraceID
// ---------------------------------------------------------------------------

func TestGetJobByID_Found(t *testing.T) {
	repo, mock := newJobRepo(t)
	mock.ExpectQuery("SELECT.*FROM generation_jobs WHERE id").
		WithArgs("job-1").
		WillReturnRows(sampleJobRow())

	job, err := repo.GetJobByID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job == nil {
		t.Fatal("expected job, got nil")
	}
	if job.Status != models.JobStatusQueued {
		t.Errorf("Status = %s, want queued", job.Status)
	}
}

func TestGetJobByID_NotFound(t *testing.T) {
	repo, mock := newJobRepo(t)
	mock.ExpectQuery("SELECT.*FROM generation_jobs WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(jobCols))

	job, err := repo.GetJobByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job != nil {
		t.Errorf("expected nil job, got %v", job)
	}
}

func TestGetJobByID_ParsesCostDetails(t *testing.T) {
	repo, mock := newJobRepo(t)
	mock.ExpectQuery("SELECT.*FROM generation_jobs WHERE id").
		WithArgs("job-1").
		WillReturnRows(succeededJobRow())

	job, err := repo.GetJobByID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job == nil {
		t.Fatal("expected job, got nil")
	}
	if job.CostEUR == nil || *job.CostEUR != 0.42 {
		t.Errorf("CostEUR = %v, want 0.42", job.CostEUR)
	}
	if job.CostDetails["model"] != "sd-xl" {
		t.Errorf("CostDetails[model] = %v, want sd-xl", job.CostDetails["model"])
	}
}

func TestGetJobByTraceID_Found(t *testing.T) {
	repo, mock := newJobRepo(t)
	mock.ExpectQuery("SELECT.*FROM generation_jobs WHERE trace_id").
		WithArgs("trace-1").
		WillReturnRows(sampleJobRow())

	job, err := repo.GetJobByTraceID(context.Background(), "trace-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job == nil {
		t.Fatal("expected job, got nil")
	}
}

func TestGetJobByTraceID_NotFound(t *testing.T) {
	repo, mock := newJobRepo(t)
	mock.ExpectQuery("SELECT.*FROM generation_jobs WHERE trace_id").
		WithArgs("trace-unknown").
		WillReturnRows(sqlmock.NewRows(jobCols))

	job, err := repo.GetJobByTraceID(context.Background(), "trace-unknown")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job != nil {
		t.Error("expected nil job for unknown trace id")
	}
}

// ---------------------------------------------------------------------------
// ListJobsByDream / ListJobs / CountJobsForUserSince
// ---------------------------------------------------------------------------

func TestListJobsByDream_Success(t *testing.T) {
	repo, mock := newJobRepo(t)
	mock.ExpectQuery("SELECT.*FROM generation_jobs.*WHERE dream_id.*ORDER BY created_at DESC").
		WithArgs("dream-1", 10).
		WillReturnRows(sampleJobRow())

	jobs, err := repo.ListJobsByDream(context.Background(), "dream-1", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("len(jobs) = %d, want 1", len(jobs))
	}
}

func TestListJobs_NoFilters(t *testing.T) {
	repo, mock := newJobRepo(t)

	mock.ExpectQuery("SELECT COUNT.*FROM generation_jobs").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT.*FROM generation_jobs.*ORDER BY created_at DESC").
		WillReturnRows(sampleJobRow())

	jobs, total, err := repo.ListJobs(context.Background(), "", "", 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
	if len(jobs) != 1 {
		t.Errorf("len(jobs) = %d, want 1", len(jobs))
	}
}

func TestListJobs_StatusAndUserFilters(t *testing.T) {
	repo, mock := newJobRepo(t)

	mock.ExpectQuery("SELECT COUNT.*FROM generation_jobs.*AND status.*AND user_id").
		WithArgs("failed", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT.*FROM generation_jobs.*AND status.*AND user_id").
		WithArgs("failed", "user-1", 20, 0).
		WillReturnRows(sqlmock.NewRows(jobCols))

	jobs, total, err := repo.ListJobs(context.Background(), "failed", "user-1", 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 0 {
		t.Errorf("total = %d, want 0", total)
	}
	if len(jobs) != 0 {
		t.Errorf("len(jobs) = %d, want 0", len(jobs))
	}
}

func TestCountJobsForUserSince_Success(t *testing.T) {
	repo, mock := newJobRepo(t)
	since := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT COUNT.*FROM generation_jobs.*WHERE user_id.*created_at >=").
		WithArgs("user-1", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountJobsForUserSince(context.Background(), "user-1", since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

// ---------------------------------------------------------------------------
// MarkRunning
// ---------------------------------------------------------------------------

func TestMarkRunning_Claims(t *testing.T) {
	repo, mock := newJobRepo(t)
	mock.ExpectExec("UPDATE generation_jobs.*SET status.*WHERE id.*AND status").
		WithArgs("job-1", models.JobStatusRunning, sqlmock.AnyArg(), models.JobStatusQueued).
		WillReturnResult(sqlmock.NewResult(1, 1))

	claimed, err := repo.MarkRunning(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !claimed {
		t.Error("expected claimed = true")
	}
}

func TestMarkRunning_AlreadyTaken(t *testing.T) {
	repo, mock := newJobRepo(t)
	// Zero rows: the job left the queued state before this worker got to it.
	mock.ExpectExec("UPDATE generation_jobs.*SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := repo.MarkRunning(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claimed {
		t.Error("expected claimed = false when job is no longer queued")
	}
}

func TestMarkRunning_DBError(t *testing.T) {
	repo, mock := newJobRepo(t)
	mock.ExpectExec("UPDATE generation_jobs.*SET status").
		WillReturnError(errDB)

	_, err := repo.MarkRunning(context.Background(), "job-1")
	if err == nil {
		t.Error("expected error, got nil")
	}
}

// ---------------------------------------------------------------------------
// UpdateProgress
// ---------------------------------------------------------------------------

func TestUpdateProgress_Success(t *testing.T) {
	repo, mock := newJobRepo(t)
	mock.ExpectExec("UPDATE generation_jobs.*SET progress = GREATEST").
		WithArgs("job-1", 50, "generating", models.JobStatusRunning).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.UpdateProgress(context.Background(), "job-1", 50, "generating"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// MarkFailed
// ---------------------------------------------------------------------------

func TestMarkFailed_TransitionsJobAndSettlesDream(t *testing.T) {
	repo, mock := newJobRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE generation_jobs.*SET status.*error.*completed_at").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE dreams.*SET status = CASE").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	applied, err := repo.MarkFailed(context.Background(), "job-1", "dream-1", "engine returned 502")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !applied {
		t.Error("expected applied = true")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestMarkFailed_AlreadyTerminal(t *testing.T) {
	repo, mock := newJobRepo(t)

	// The job already reached a terminal state; nothing else in the transaction
	// may run, in particular the dream must stay as the earlier transition left it.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE generation_jobs.*SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	applied, err := repo.MarkFailed(context.Background(), "job-1", "dream-1", "late failure")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied {
		t.Error("expected applied = false for terminal job")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestMarkFailed_DreamUpdateError_RollsBack(t *testing.T) {
	repo, mock := newJobRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE generation_jobs.*SET status").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE dreams.*SET status = CASE").
		WillReturnError(errDB)
	mock.ExpectRollback()

	_, err := repo.MarkFailed(context.Background(), "job-1", "dream-1", "boom")
	if err == nil {
		t.Error("expected error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// ---------------------------------------------------------------------------
// CompleteSuccess
// ---------------------------------------------------------------------------

func TestCompleteSuccess_InsertsAssetsAndReadiesDream(t *testing.T) {
	repo, mock := newJobRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE generation_jobs.*SET status.*progress = 100").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO image_assets").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO image_assets").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE dreams SET status").
		WithArgs("dream-1", models.DreamStatusReady, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	cost := 0.42
	assets := []*models.ImageAsset{
		{DreamID: "dream-1", JobID: "job-1", URL: "https://cdn.example.com/a.jpg", Width: 1024, Height: 1024, Source: models.ImageSourceAI},
		{DreamID: "dream-1", JobID: "job-1", URL: "https://cdn.example.com/b.jpg", Width: 1024, Height: 1024, Source: models.ImageSourceAI},
	}
	applied, err := repo.CompleteSuccess(context.Background(), "job-1", "dream-1", 2, &cost,
		map[string]interface{}{"model": "sd-xl"}, assets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !applied {
		t.Error("expected applied = true")
	}
	for i, a := range assets {
		if a.ID == "" {
			t.Errorf("assets[%d].ID not set", i)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCompleteSuccess_DuplicateDelivery(t *testing.T) {
	repo, mock := newJobRepo(t)

	// Second delivery of the same webhook: the status guard matches zero rows and
	// no asset inserts may happen.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE generation_jobs.*SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	assets := []*models.ImageAsset{
		{DreamID: "dream-1", JobID: "job-1", URL: "https://cdn.example.com/a.jpg", Width: 1024, Height: 1024, Source: models.ImageSourceAI},
	}
	applied, err := repo.CompleteSuccess(context.Background(), "job-1", "dream-1", 1, nil, nil, assets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied {
		t.Error("expected applied = false for duplicate delivery")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCompleteSuccess_AssetInsertError_RollsBack(t *testing.T) {
	repo, mock := newJobRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE generation_jobs.*SET status").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO image_assets").
		WillReturnError(errDB)
	mock.ExpectRollback()

	assets := []*models.ImageAsset{
		{DreamID: "dream-1", JobID: "job-1", URL: "https://cdn.example.com/a.jpg", Width: 1024, Height: 1024, Source: models.ImageSourceAI},
	}
	_, err := repo.CompleteSuccess(context.Background(), "job-1", "dream-1", 1, nil, nil, assets)
	if err == nil {
		t.Error("expected error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCompleteSuccess_NoCost(t *testing.T) {
	repo, mock := newJobRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE generation_jobs.*SET status").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE dreams SET status").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	applied, err := repo.CompleteSuccess(context.Background(), "job-1", "dream-1", 0, nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !applied {
		t.Error("expected applied = true")
	}
}

// ---------------------------------------------------------------------------
// ListStaleRunning / ListStaleQueued
// ---------------------------------------------------------------------------

func TestListStaleRunning_Success(t *testing.T) {
	repo, mock := newJobRepo(t)
	cutoff := time.Now().Add(-10 * time.Minute)
	now := time.Now()
	mock.ExpectQuery("SELECT.*FROM generation_jobs.*WHERE status.*started_at <").
		WithArgs(models.JobStatusRunning, cutoff, 50).
		WillReturnRows(sqlmock.NewRows(jobCols).
			AddRow("job-1", "dream-1", "user-1", "trace-1", "running", 50, "generating", nil,
				4, nil, nil, now.Add(-20*time.Minute), now.Add(-15*time.Minute), nil))

	jobs, err := repo.ListStaleRunning(context.Background(), cutoff, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("len(jobs) = %d, want 1", len(jobs))
	}
}

func TestListStaleQueued_Empty(t *testing.T) {
	repo, mock := newJobRepo(t)
	cutoff := time.Now().Add(-30 * time.Minute)
	mock.ExpectQuery("SELECT.*FROM generation_jobs.*WHERE status.*created_at <").
		WithArgs(models.JobStatusQueued, cutoff, 50).
		WillReturnRows(sqlmock.NewRows(jobCols))

	jobs, err := repo.ListStaleQueued(context.Background(), cutoff, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("len(jobs) = %d, want 0", len(jobs))
	}
}
