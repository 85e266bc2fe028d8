package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codejudge/internal/common/cache"
	commonmw "codejudge/internal/common/http/middleware"
	judgecontroller "codejudge/internal/judge/controller"
	"codejudge/internal/judge/language"
	"codejudge/internal/judge/model"
	submitcontroller "codejudge/internal/submit/controller"
	"codejudge/internal/submit/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

type stubJudge struct{}

func (stubJudge) Judge(ctx context.Context, languageID, userCode string, testCases []model.TestCase) (*model.Verdict, error) {
	return model.NewVerdict(nil), nil
}

type stubSubmitter struct{}

func (stubSubmitter) Submit(ctx context.Context, input service.SubmitInput) (*model.Submission, error) {
	return &model.Submission{SubmissionID: "s-1", UserID: input.UserID}, nil
}

func (stubSubmitter) Enqueue(ctx context.Context, input service.SubmitInput) (model.SubmissionStatus, error) {
	return model.SubmissionStatus{SubmissionID: "s-1", Status: model.StatusJudging}, nil
}

func (stubSubmitter) Get(ctx context.Context, userID int64, submissionID string) (*service.SubmissionDetail, error) {
	return &service.SubmissionDetail{Status: model.SubmissionStatus{SubmissionID: submissionID, UserID: userID}}, nil
}

func (stubSubmitter) ListByProblem(ctx context.Context, userID, problemID int64, languageID string) ([]model.Submission, error) {
	return []model.Submission{}, nil
}

func newTestRouter(t *testing.T, limits RouteRateLimitConfig) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("init redis cache: %v", err)
	}
	router := gin.New()
	registerRoutes(router, limits, routes{
		judge:    judgecontroller.NewJudgeController(language.Default(), stubJudge{}, judgecontroller.RunLimits{MaxTestCases: 1}),
		submit:   submitcontroller.NewSubmitController(stubSubmitter{}),
		verifier: commonmw.NewTokenVerifier("secret", "codejudge", rc),
		limiter:  commonmw.NewRateLimiter(rc, time.Second),
	})
	return router
}

func TestRoutesPublicAndAuthed(t *testing.T) {
	router := newTestRouter(t, RouteRateLimitConfig{Window: time.Minute, IPMax: 10})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "languages", method: http.MethodGet, path: "/api/v1/languages", want: http.StatusOK},
		{name: "judge run", method: http.MethodPost, path: "/api/v1/judge/run", body: `{"language_id":"python","source_code":"x","test_cases":[]}`, want: http.StatusOK},
		{name: "create requires auth", method: http.MethodPost, path: "/api/v1/submissions", body: `{}`, want: http.StatusUnauthorized},
		{name: "get requires auth", method: http.MethodGet, path: "/api/v1/submissions/s-1", want: http.StatusUnauthorized},
		{name: "list requires auth", method: http.MethodGet, path: "/api/v1/problems/1/submissions", want: http.StatusUnauthorized},
		{name: "unknown route", method: http.MethodGet, path: "/api/v1/unknown", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("%s %s = %d, want %d (%s)", tt.method, tt.path, w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRoutesJudgeRunRateLimited(t *testing.T) {
	router := newTestRouter(t, RouteRateLimitConfig{Window: time.Minute, IPMax: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/judge/run", bytes.NewBufferString(`{"language_id":"python","source_code":"x","test_cases":[]}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
}

func TestRoutesJudgeRunRejectsOversizedRequest(t *testing.T) {
	router := newTestRouter(t, RouteRateLimitConfig{Window: time.Minute, IPMax: 10})

	body := `{"language_id":"python","source_code":"x","test_cases":[{"test_code":"a"},{"test_code":"b"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/judge/run", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too many test cases, got %d (%s)", w.Code, w.Body.String())
	}
}

func accessToken(t *testing.T, subject string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "codejudge",
		"sub": subject,
		"typ": "access",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestRoutesSubmissionPollingLimitedPerUser(t *testing.T) {
	router := newTestRouter(t, RouteRateLimitConfig{Window: time.Minute, IPMax: 10, PollUserMax: 2})

	get := func(token string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/submissions/s-1", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}
	alice, bob := accessToken(t, "42"), accessToken(t, "43")
	codes := []int{get(alice), get(alice), get(alice), get(bob)}
	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests, http.StatusOK}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("unexpected status sequence %v, want %v", codes, want)
		}
	}
}
