package dreams

import (
	"net/http"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/oneira/oneira/internal/db/models"
)

func runningJobRow() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(jobCols).
		AddRow("job-1", "dream-1", "user-1", "trace-1", "running", 50, "generating",
			nil, 0, nil, nil, now, now, nil)
}

func succeededJobRow() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(jobCols).
		AddRow("job-1", "dream-1", "user-1", "trace-1", "succeeded", 100, "complete",
			nil, 2, 0.42, []byte(`{"gpu_seconds": 12}`), now, now, now)
}

// ---------------------------------------------------------------------------
// GenerateHandler
// ---------------------------------------------------------------------------

func TestGenerateHandler_Success(t *testing.T) {
	mock, r := newDreamRouter(t, testUser())
	mock.ExpectQuery("FROM dreams").WillReturnRows(dreamRow("user-1"))
	// Free plan quota check counts this month's jobs.
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("FROM photos").WillReturnRows(photoRow("photo-1", "user-1"))
	mock.ExpectExec("INSERT INTO generation_jobs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE dreams").WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(r, "POST", "/v1/dreams/dream-1/generate", nil)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body %s", w.Code, w.Body.String())
	}
	resp := getJSON(w)
	if resp["success"] != true {
		t.Errorf("success = %v, want true", resp["success"])
	}
	job, ok := resp["job"].(map[string]interface{})
	if !ok {
		t.Fatal("response missing 'job' object")
	}
	if job["status"] != string(models.JobStatusQueued) {
		t.Errorf("job.status = %v, want queued", job["status"])
	}
	if job["traceId"] == nil || job["traceId"] == "" {
		t.Error("job.traceId missing")
	}
	if job["estimatedDuration"] != float64(180) {
		t.Errorf("estimatedDuration = %v, want 180", job["estimatedDuration"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestGenerateHandler_QuotaExceeded(t *testing.T) {
	mock, r := newDreamRouter(t, testUser())
	mock.ExpectQuery("FROM dreams").WillReturnRows(dreamRow("user-1"))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	w := doJSON(r, "POST", "/v1/dreams/dream-1/generate", nil)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
}

func TestGenerateHandler_UnlimitedPlanSkipsCount(t *testing.T) {
	user := testUser()
	user.PlanID = "pro"
	mock, r := newDreamRouter(t, user)
	mock.ExpectQuery("FROM dreams").WillReturnRows(dreamRow("user-1"))
	mock.ExpectQuery("FROM photos").WillReturnRows(photoRow("photo-1", "user-1"))
	mock.ExpectExec("INSERT INTO generation_jobs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE dreams").WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSON(r, "POST", "/v1/dreams/dream-1/generate", nil)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestGenerateHandler_NoEnabledPhotos(t *testing.T) {
	mock, r := newDreamRouter(t, testUser())
	mock.ExpectQuery("FROM dreams").WillReturnRows(dreamRow("user-1"))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("FROM photos").WillReturnRows(sqlmock.NewRows(photoCols))

	w := doJSON(r, "POST", "/v1/dreams/dream-1/generate", nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGenerateHandler_ForeignDream(t *testing.T) {
	mock, r := newDreamRouter(t, testUser())
	mock.ExpectQuery("FROM dreams").WillReturnRows(dreamRow("user-2"))

	w := doJSON(r, "POST", "/v1/dreams/dream-1/generate", nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------------------------------------------------------------------------
// GetJobHandler
// ---------------------------------------------------------------------------

func TestGetJobHandler_Running(t *testing.T) {
	mock, r := newDreamRouter(t, testUser())
	mock.ExpectQuery("FROM dreams").WillReturnRows(dreamRow("user-1"))
	mock.ExpectQuery("FROM generation_jobs").WillReturnRows(runningJobRow())

	w := doJSON(r, "GET", "/v1/dreams/dream-1/jobs/job-1", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}
	resp := getJSON(w)
	job, ok := resp["job"].(map[string]interface{})
	if !ok {
		t.Fatal("response missing 'job' object")
	}
	if job["status"] != "running" || job["progress"] != float64(50) {
		t.Errorf("job = %v, want running at 50", job)
	}
	if _, present := job["images"]; present {
		t.Error("running job carries images, want none")
	}
}

func TestGetJobHandler_SucceededIncludesImages(t *testing.T) {
	mock, r := newDreamRouter(t, testUser())
	mock.ExpectQuery("FROM dreams").WillReturnRows(dreamRow("user-1"))
	mock.ExpectQuery("FROM generation_jobs").WillReturnRows(succeededJobRow())
	mock.ExpectQuery("FROM image_assets").WillReturnRows(
		sqlmock.NewRows(assetCols).
			AddRow("asset-1", "dream-1", "job-1", "https://cdn.test/1.png", 1024, 1024, "ai", time.Now()))

	w := doJSON(r, "GET", "/v1/dreams/dream-1/jobs/job-1", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}
	resp := getJSON(w)
	job := resp["job"].(map[string]interface{})
	images, ok := job["images"].([]interface{})
	if !ok || len(images) != 1 {
		t.Fatalf("images = %v, want 1 entry", job["images"])
	}
	img := images[0].(map[string]interface{})
	if img["source"] != "ai" {
		t.Errorf("image source = %v, want ai", img["source"])
	}
}

func TestGetJobHandler_WrongDream(t *testing.T) {
	// A job id belonging to a different dream reads as absent.
	mock, r := newDreamRouter(t, testUser())
	mock.ExpectQuery("FROM dreams").WillReturnRows(dreamRow("user-1"))
	now := time.Now()
	mock.ExpectQuery("FROM generation_jobs").WillReturnRows(
		sqlmock.NewRows(jobCols).
			AddRow("job-1", "dream-9", "user-1", "trace-1", "running", 50, "generating",
				nil, 0, nil, nil, now, now, nil))

	w := doJSON(r, "GET", "/v1/dreams/dream-1/jobs/job-1", nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetJobHandler_NotFound(t *testing.T) {
	mock, r := newDreamRouter(t, testUser())
	mock.ExpectQuery("FROM dreams").WillReturnRows(dreamRow("user-1"))
	mock.ExpectQuery("FROM generation_jobs").WillReturnRows(sqlmock.NewRows(jobCols))

	w := doJSON(r, "GET", "/v1/dreams/dream-1/jobs/nope", nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------------------------------------------------------------------------
// ListMyJobsHandler
// ---------------------------------------------------------------------------

func TestListMyJobsHandler_Success(t *testing.T) {
	mock, r := newDreamRouter(t, testUser())
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("FROM generation_jobs").WillReturnRows(runningJobRow())

	w := doJSON(r, "GET", "/v1/me/jobs", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := getJSON(w)
	jobs, ok := resp["jobs"].([]interface{})
	if !ok || len(jobs) != 1 {
		t.Fatalf("jobs = %v, want 1 entry", resp["jobs"])
	}
}

func TestListMyJobsHandler_StatusFilter(t *testing.T) {
	mock, r := newDreamRouter(t, testUser())
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("FROM generation_jobs").WillReturnRows(sqlmock.NewRows(jobCols))

	w := doJSON(r, "GET", "/v1/me/jobs?status=failed", nil)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestListMyJobsHandler_UnknownStatus(t *testing.T) {
	_, r := newDreamRouter(t, testUser())

	w := doJSON(r, "GET", "/v1/me/jobs?status=paused", nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
