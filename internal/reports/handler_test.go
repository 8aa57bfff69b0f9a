package reports

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("userId", "user-1")
		c.Next()
	})
	NewHandler(svc).RegisterRoutes(router.Group("/api/v1"))
	return router
}

func TestCreateReportReturnsAccepted(t *testing.T) {
	svc, _, _, _, _ := newTestService(&scriptedCompleter{})
	router := newTestRouter(svc)

	body := `{"workflow":"company_profile","companies":["Acme"],"depth":"brief"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.Code, resp.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["reportId"] == "" || payload["reportId"] == nil {
		t.Fatalf("expected reportId in response")
	}
	if payload["status"] != StatusPending {
		t.Fatalf("expected pending status, got %v", payload["status"])
	}
}

func TestCreateReportRejectsUnknownWorkflowWithEnvelope(t *testing.T) {
	svc, _, _, _, _ := newTestService(&scriptedCompleter{})
	router := newTestRouter(svc)

	body := `{"workflow":"market_sizing","companies":["Acme"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Error.Code != "validation_error" {
		t.Fatalf("expected validation_error, got %q", payload.Error.Code)
	}
}

func TestReportStatusNotFound(t *testing.T) {
	svc, _, _, _, _ := newTestService(&scriptedCompleter{})
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/missing/status", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestReportStatusIncludesProgress(t *testing.T) {
	svc, repo, _, _, _ := newTestService(&scriptedCompleter{})
	router := newTestRouter(svc)

	report := seedReport(t, repo, Report{
		Workflow: WorkflowCompanyProfile,
		Status:   StatusProcessing,
		Sections: []string{"overview", "leadership"},
		Content:  map[string]string{"overview": "done"},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+report.ID+"/status", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["progress"] != float64(50) {
		t.Fatalf("expected progress 50, got %v", payload["progress"])
	}
}
