package controller_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"codejudge/internal/judge/model"
	"codejudge/internal/submit/controller"
	"codejudge/internal/submit/service"
	appErr "codejudge/pkg/errors"

	"github.com/gin-gonic/gin"
)

type stubSubmitter struct {
	lastInput    service.SubmitInput
	lastLanguage string
	err          error
}

func (s *stubSubmitter) Submit(_ context.Context, in service.SubmitInput) (*model.Submission, error) {
	s.lastInput = in
	if s.err != nil {
		return nil, s.err
	}
	return &model.Submission{
		SubmissionID: "s-1",
		Summary:      model.Summary{Status: "1/1 tests", PassedTests: 1, TotalTests: 1},
		Results:      []model.TestResult{{Index: 0, Passed: true}},
	}, nil
}

func (s *stubSubmitter) Enqueue(_ context.Context, in service.SubmitInput) (model.SubmissionStatus, error) {
	s.lastInput = in
	if s.err != nil {
		return model.SubmissionStatus{}, s.err
	}
	return model.SubmissionStatus{SubmissionID: "s-2", UserID: in.UserID, Status: model.StatusJudging}, nil
}

func (s *stubSubmitter) Get(_ context.Context, userID int64, id string) (*service.SubmissionDetail, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &service.SubmissionDetail{Status: model.SubmissionStatus{SubmissionID: id, UserID: userID, Status: model.StatusFinished}}, nil
}

func (s *stubSubmitter) ListByProblem(_ context.Context, _, _ int64, languageID string) ([]model.Submission, error) {
	s.lastLanguage = languageID
	return []model.Submission{{SubmissionID: "s-1"}}, s.err
}

type envelope struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
}

func newRouter(stub *stubSubmitter, authenticated bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if authenticated {
		r.Use(func(c *gin.Context) {
			c.Set("user_id", int64(42))
			c.Next()
		})
	}
	h := controller.NewSubmitController(stub)
	r.POST("/submissions", h.Create)
	r.GET("/submissions/:id", h.Get)
	r.GET("/problems/:id/submissions", h.ListByProblem)
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreateSync(t *testing.T) {
	stub := &stubSubmitter{}
	rec := do(newRouter(stub, true), http.MethodPost, "/submissions", `{"problem_id":3,"language_id":"python","source_code":"x = 1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if stub.lastInput.UserID != 42 || stub.lastInput.ProblemID != 3 {
		t.Fatalf("caller identity not forwarded: %+v", stub.lastInput)
	}
	var resp envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	var data controller.SubmitResponse
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if data.SubmissionID != "s-1" || data.Summary == nil || data.Summary.Status != "1/1 tests" {
		t.Fatalf("unexpected response: %+v", data)
	}
}

func TestCreateAsync(t *testing.T) {
	stub := &stubSubmitter{}
	rec := do(newRouter(stub, true), http.MethodPost, "/submissions", `{"problem_id":3,"language_id":"go","source_code":"package main","async":true}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"status":"Judging"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestCreateRejects(t *testing.T) {
	if rec := do(newRouter(&stubSubmitter{}, false), http.MethodPost, "/submissions", `{}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec := do(newRouter(&stubSubmitter{}, true), http.MethodPost, "/submissions", `{"problem_id":3}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	stub := &stubSubmitter{err: appErr.New(appErr.SubmitTooFrequently)}
	if rec := do(newRouter(stub, true), http.MethodPost, "/submissions", `{"problem_id":3,"language_id":"go","source_code":"x"}`); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestGetAndList(t *testing.T) {
	stub := &stubSubmitter{}
	r := newRouter(stub, true)

	if rec := do(r, http.MethodGet, "/submissions/s-9", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"submission_id":"s-9"`) {
		t.Fatalf("unexpected get response %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(r, http.MethodGet, "/problems/3/submissions?language_id=python", ""); rec.Code != http.StatusOK {
		t.Fatalf("unexpected list status %d", rec.Code)
	}
	if stub.lastLanguage != "python" {
		t.Fatalf("language filter not forwarded: %q", stub.lastLanguage)
	}
	if rec := do(r, http.MethodGet, "/problems/abc/submissions", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad problem id, got %d", rec.Code)
	}

	notFound := newRouter(&stubSubmitter{err: appErr.New(appErr.SubmissionNotFound)}, true)
	if rec := do(notFound, http.MethodGet, "/submissions/x", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
