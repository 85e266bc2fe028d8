package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codejudge/internal/common/http/middleware"
	appErr "codejudge/pkg/errors"

	"github.com/gin-gonic/gin"
)

func TestRateLimiterAllow(t *testing.T) {
	rc, mr := newRedisCache(t)
	limiter := middleware.NewRateLimiter(rc, time.Second)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := limiter.Allow(ctx, "rate:test", 2, time.Minute); err != nil {
			t.Fatalf("hit %d rejected: %v", i+1, err)
		}
	}
	if err := limiter.Allow(ctx, "rate:test", 2, time.Minute); !appErr.Is(err, appErr.TooManyRequests) {
		t.Fatalf("expected TooManyRequests, got %v", err)
	}
	if ttl := mr.TTL("rate:test"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("window ttl not set: %v", ttl)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := limiter.Allow(ctx, "rate:test", 2, time.Minute); err != nil {
		t.Fatalf("new window should allow, got %v", err)
	}
}

func TestRateLimiterWithoutCache(t *testing.T) {
	var limiter *middleware.RateLimiter
	if err := limiter.Allow(context.Background(), "k", 1, time.Minute); !appErr.Is(err, appErr.ServiceUnavailable) {
		t.Fatalf("expected ServiceUnavailable, got %v", err)
	}
}

func TestRateLimitMiddlewarePerUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rc, _ := newRedisCache(t)
	verifier := middleware.NewTokenVerifier(testSecret, testIssuer, nil)
	limiter := middleware.NewRateLimiter(rc, time.Second)

	r := gin.New()
	r.GET("/status",
		middleware.AuthMiddleware(verifier),
		middleware.RateLimitMiddleware(limiter, "status", middleware.RateLimitPolicy{Window: time.Minute, UserMax: 1}),
		func(c *gin.Context) { c.Status(http.StatusNoContent) },
	)

	call := func(subject string) int {
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, testIssuer, "access", subject, time.Hour))
		req.RemoteAddr = "10.0.0.9:5000"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	if got := call("42"); got != http.StatusNoContent {
		t.Fatalf("first call = %d", got)
	}
	if got := call("42"); got != http.StatusTooManyRequests {
		t.Fatalf("second call by the same user = %d, want 429", got)
	}
	if got := call("43"); got != http.StatusNoContent {
		t.Fatalf("another user from the same IP = %d, want 204", got)
	}
}

func TestRateLimitMiddlewarePerIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rc, _ := newRedisCache(t)
	limiter := middleware.NewRateLimiter(rc, time.Second)

	r := gin.New()
	r.POST("/run",
		middleware.RateLimitMiddleware(limiter, "run", middleware.RateLimitPolicy{Window: time.Minute, IPMax: 1}),
		func(c *gin.Context) { c.Status(http.StatusNoContent) },
	)

	call := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/run", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	codes := []int{call("10.0.0.1:1"), call("10.0.0.1:2"), call("10.0.0.2:1")}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusTooManyRequests || codes[2] != http.StatusNoContent {
		t.Fatalf("unexpected status sequence %v", codes)
	}
}
