package admin

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/oneira/oneira/internal/billing"
	"github.com/oneira/oneira/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// Shared test setup
// ---------------------------------------------------------------------------

// Column sets matching the repository SELECT queries.
var (
	codeCols = []string{
		"id", "code", "source", "status", "max_activations", "current_uses",
		"expires_at", "user_id", "used_at", "created_at",
	}
	userCols = []string{
		"id", "pin_hash", "role", "status", "plan_id", "display_name",
		"created_at", "updated_at", "deleted_at",
	}
	jobCols = []string{
		"id", "dream_id", "user_id", "trace_id", "status", "progress",
		"current_step", "error", "image_count", "cost_eur", "cost_details",
		"created_at", "started_at", "completed_at",
	}
	auditCols = []string{
		"id", "user_id", "action", "resource_type", "resource_id",
		"metadata", "ip_address", "created_at",
	}
)

type dbError struct{ msg string }

func (e *dbError) Error() string { return e.msg }

var errDB = &dbError{"db is down"}

func testCatalogue(t *testing.T) *billing.Catalogue {
	t.Helper()
	cat, err := billing.NewCatalogue(&config.PlansConfig{
		Default: "free",
		Catalogue: []config.PlanConfig{
			{ID: "free", Name: "Free", MonthlyGens: 3, MaxPhotos: 10, MaxImagesGen: 1},
			{ID: "pro", Name: "Pro", PriceEURMo: 9.9, MaxImagesGen: 4},
		},
	})
	if err != nil {
		t.Fatalf("NewCatalogue: %v", err)
	}
	return cat
}

// newAdminRouter registers every backoffice route against one mock database.
func newAdminRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{}
	codes := NewAccessCodeHandlers(cfg, db)
	users := NewUserHandlers(cfg, db, testCatalogue(t))
	jobs := NewJobHandlers(cfg, db)
	audit := NewAuditLogHandlers(cfg, db)

	r := gin.New()
	r.POST("/v1/admin/access-codes", codes.MintCodesHandler())
	r.GET("/v1/admin/access-codes", codes.ListCodesHandler())
	r.POST("/v1/admin/access-codes/:id/revoke", codes.RevokeCodeHandler())
	r.GET("/v1/admin/users", users.ListUsersHandler())
	r.GET("/v1/admin/users/:id", users.GetUserHandler())
	r.PUT("/v1/admin/users/:id/status", users.SetUserStatusHandler())
	r.PUT("/v1/admin/users/:id/plan", users.UpdateUserPlanHandler())
	r.GET("/v1/admin/jobs", jobs.ListJobsHandler())
	r.GET("/v1/admin/audit-logs", audit.ListAuditLogsHandler())

	return mock, r
}

func jsonBody(v interface{}) *bytes.Buffer {
	b, _ := json.Marshal(v)
	return bytes.NewBuffer(b)
}

func getJSON(resp *httptest.ResponseRecorder) map[string]interface{} {
	var m map[string]interface{}
	json.Unmarshal(resp.Body.Bytes(), &m)
	return m
}

func doRequest(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	if body != nil {
		req := httptest.NewRequest(method, path, jsonBody(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w
	}
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
