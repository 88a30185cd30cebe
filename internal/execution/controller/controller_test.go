package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"codegrade/internal/execution/model"
	"codegrade/pkg/errors"

	"github.com/gin-gonic/gin"
)

type fakeService struct {
	summary model.ExecutionSummary
	execErr error
	record  *model.ExecutionStatusRecord
	getErr  error
	lastReq model.ExecutionRequest
}

func (f *fakeService) Execute(ctx context.Context, req model.ExecutionRequest) (model.ExecutionSummary, error) {
	f.lastReq = req
	return f.summary, f.execErr
}

func (f *fakeService) GetStatus(ctx context.Context, id string) (*model.ExecutionStatusRecord, error) {
	return f.record, f.getErr
}

func (f *fakeService) Languages() []string { return []string{"python", "javascript"} }

func newTestRouter(svc Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewExecutionController(svc).RegisterRoutes(r)
	return r
}

func TestExecuteEndpoint(t *testing.T) {
	svc := &fakeService{summary: model.ExecutionSummary{
		SubmissionID:  "sub-1",
		OverallPassed: true,
		Results:       []model.TestCaseResult{{TestIndex: 0, Passed: true, ActualOutput: "15"}},
	}}
	r := newTestRouter(svc)

	body := `{
		"language": "python",
		"source_code": "def solve(arr):\n    return sum(arr)\n",
		"test_cases": [{"input": [1, 2, 3, 4, 5], "output": 15}],
		"time_limit_ms": 5000
	}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/executions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if svc.lastReq.Language != "python" || len(svc.lastReq.TestCases) != 1 {
		t.Fatalf("request not bound: %+v", svc.lastReq)
	}
	if svc.lastReq.TimeLimitMs != 5000 {
		t.Fatalf("time limit not bound: %+v", svc.lastReq)
	}

	var resp struct {
		Code int                    `json:"code"`
		Data model.ExecutionSummary `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Data.OverallPassed || resp.Data.SubmissionID != "sub-1" {
		t.Fatalf("summary lost in response: %+v", resp.Data)
	}
}

func TestExecuteEndpointInvalidBody(t *testing.T) {
	r := newTestRouter(&fakeService{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/executions", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestExecuteEndpointServiceError(t *testing.T) {
	svc := &fakeService{execErr: errors.Newf(errors.LanguageNotSupported, "language not supported: cobol")}
	r := newTestRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/executions",
		strings.NewReader(`{"language":"cobol","source_code":"x","test_cases":[{"input":1,"output":"1"}]}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code == http.StatusOK {
		t.Fatalf("expected error status, got 200: %s", w.Body.String())
	}
	var resp struct {
		Code int `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Code != int(errors.LanguageNotSupported) {
		t.Fatalf("expected code %d, got %d", errors.LanguageNotSupported, resp.Code)
	}
}

func TestGetStatusEndpoint(t *testing.T) {
	svc := &fakeService{record: &model.ExecutionStatusRecord{
		SubmissionID: "sub-9",
		Status:       model.StatusFinished,
	}}
	r := newTestRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/executions/sub-9", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"sub-9"`) {
		t.Fatalf("record missing from body: %s", w.Body.String())
	}
}

func TestGetStatusEndpointNotFound(t *testing.T) {
	svc := &fakeService{getErr: errors.Newf(errors.NotFound, "no status for submission nope")}
	r := newTestRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/executions/nope", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestListLanguagesEndpoint(t *testing.T) {
	r := newTestRouter(&fakeService{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/languages", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "python") {
		t.Fatalf("languages missing: %s", w.Body.String())
	}
}
