package admin

import (
	"net/http"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestMintCodesHandler_Success(t *testing.T) {
	mock, r := newAdminRouter(t)

	mock.ExpectBegin()
	for i := 0; i < 3; i++ {
		mock.ExpectExec("INSERT INTO access_codes").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "beta", "valid", 2, 0, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	resp := doRequest(r, "POST", "/v1/admin/access-codes", map[string]interface{}{
		"count":          3,
		"source":         "beta",
		"maxActivations": 2,
		"expiresInDays":  30,
	})

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	body := getJSON(resp)
	codes, ok := body["codes"].([]interface{})
	if !ok || len(codes) != 3 {
		t.Fatalf("expected 3 codes, got %v", body["codes"])
	}

	seen := map[string]bool{}
	for _, raw := range codes {
		code := raw.(map[string]interface{})
		plain, _ := code["code"].(string)
		if len(plain) != 14 || strings.Count(plain, "-") != 2 {
			t.Errorf("code %q is not in grouped form", plain)
		}
		if seen[plain] {
			t.Errorf("duplicate code minted: %s", plain)
		}
		seen[plain] = true
		if code["status"] != "valid" {
			t.Errorf("expected status valid, got %v", code["status"])
		}
		if code["maxActivations"] != float64(2) {
			t.Errorf("expected maxActivations 2, got %v", code["maxActivations"])
		}
		if code["expiresAt"] == nil {
			t.Error("expected expiresAt to be set")
		}
	}
	expectationsMet(t, mock)
}

func TestMintCodesHandler_Defaults(t *testing.T) {
	mock, r := newAdminRouter(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO access_codes").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "admin", "valid", 1, 0, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	resp := doRequest(r, "POST", "/v1/admin/access-codes", map[string]interface{}{"count": 1})

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	codes := getJSON(resp)["codes"].([]interface{})
	code := codes[0].(map[string]interface{})
	if code["source"] != "admin" {
		t.Errorf("expected default source admin, got %v", code["source"])
	}
	if code["expiresAt"] != nil {
		t.Errorf("expected no expiry, got %v", code["expiresAt"])
	}
	expectationsMet(t, mock)
}

func TestMintCodesHandler_MissingCount(t *testing.T) {
	_, r := newAdminRouter(t)

	resp := doRequest(r, "POST", "/v1/admin/access-codes", map[string]interface{}{})

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestMintCodesHandler_BatchTooLarge(t *testing.T) {
	_, r := newAdminRouter(t)

	resp := doRequest(r, "POST", "/v1/admin/access-codes", map[string]interface{}{"count": 501})

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestMintCodesHandler_BadExpiry(t *testing.T) {
	_, r := newAdminRouter(t)

	resp := doRequest(r, "POST", "/v1/admin/access-codes", map[string]interface{}{
		"count":         1,
		"expiresInDays": 0,
	})

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestMintCodesHandler_DBError(t *testing.T) {
	mock, r := newAdminRouter(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO access_codes").WillReturnError(errDB)
	mock.ExpectRollback()

	resp := doRequest(r, "POST", "/v1/admin/access-codes", map[string]interface{}{"count": 2})

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	expectationsMet(t, mock)
}

func TestListCodesHandler_Filtered(t *testing.T) {
	mock, r := newAdminRouter(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM access_codes`).
		WithArgs("valid", "beta").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT id, code, source, status(.+)FROM access_codes").
		WithArgs("valid", "beta", 20, 0).
		WillReturnRows(sqlmock.NewRows(codeCols).
			AddRow("code-1", "AAAA-BBBB-CCCC", "beta", "valid", 1, 0, nil, nil, nil, time.Now()).
			AddRow("code-2", "DDDD-EEEE-FFFF", "beta", "valid", 1, 0, nil, nil, nil, time.Now()))

	resp := doRequest(r, "GET", "/v1/admin/access-codes?status=valid&source=beta", nil)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	body := getJSON(resp)
	if codes := body["codes"].([]interface{}); len(codes) != 2 {
		t.Errorf("expected 2 codes, got %d", len(codes))
	}
	pagination := body["pagination"].(map[string]interface{})
	if pagination["total"] != float64(2) {
		t.Errorf("expected total 2, got %v", pagination["total"])
	}
	expectationsMet(t, mock)
}

func TestListCodesHandler_UnknownStatus(t *testing.T) {
	_, r := newAdminRouter(t)

	resp := doRequest(r, "GET", "/v1/admin/access-codes?status=bogus", nil)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestRevokeCodeHandler_Success(t *testing.T) {
	mock, r := newAdminRouter(t)

	mock.ExpectQuery("SELECT id, code, source, status(.+)WHERE id = ").
		WithArgs("code-1").
		WillReturnRows(sqlmock.NewRows(codeCols).
			AddRow("code-1", "AAAA-BBBB-CCCC", "admin", "valid", 1, 0, nil, nil, nil, time.Now()))
	mock.ExpectExec("UPDATE access_codes").
		WithArgs("code-1", "revoked", "valid").
		WillReturnResult(sqlmock.NewResult(0, 1))

	resp := doRequest(r, "POST", "/v1/admin/access-codes/code-1/revoke", nil)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if getJSON(resp)["success"] != true {
		t.Error("expected success true")
	}
	expectationsMet(t, mock)
}

func TestRevokeCodeHandler_NotFound(t *testing.T) {
	mock, r := newAdminRouter(t)

	mock.ExpectQuery("SELECT id, code, source, status(.+)WHERE id = ").
		WithArgs("code-x").
		WillReturnRows(sqlmock.NewRows(codeCols))

	resp := doRequest(r, "POST", "/v1/admin/access-codes/code-x/revoke", nil)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	expectationsMet(t, mock)
}

func TestRevokeCodeHandler_AlreadyUsed(t *testing.T) {
	mock, r := newAdminRouter(t)

	mock.ExpectQuery("SELECT id, code, source, status(.+)WHERE id = ").
		WithArgs("code-1").
		WillReturnRows(sqlmock.NewRows(codeCols).
			AddRow("code-1", "AAAA-BBBB-CCCC", "admin", "used", 1, 1, nil, "user-1", time.Now(), time.Now()))
	mock.ExpectExec("UPDATE access_codes").
		WithArgs("code-1", "revoked", "valid").
		WillReturnResult(sqlmock.NewResult(0, 0))

	resp := doRequest(r, "POST", "/v1/admin/access-codes/code-1/revoke", nil)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", resp.Code, resp.Body.String())
	}
	body := getJSON(resp)
	if body["status"] != "used" {
		t.Errorf("expected status used in response, got %v", body["status"])
	}
	expectationsMet(t, mock)
}
