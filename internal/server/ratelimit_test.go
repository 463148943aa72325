package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRateLimiterAllowsBurstThenRejects(t *testing.T) {
	limiter := NewRateLimiter(1, 2)
	now := time.Unix(1700000000, 0)
	limiter.clock = func() time.Time { return now }

	if !limiter.Allow("10.0.0.1") || !limiter.Allow("10.0.0.1") {
		t.Fatalf("expected burst of two to be allowed")
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatalf("expected third request to be rejected")
	}
	if !limiter.Allow("10.0.0.2") {
		t.Fatalf("expected other clients to keep their own budget")
	}

	now = now.Add(time.Second)
	if !limiter.Allow("10.0.0.1") {
		t.Fatalf("expected token refilled after one second")
	}
}

func TestRateLimiterForgetsIdleVisitors(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	now := time.Unix(1700000000, 0)
	limiter.clock = func() time.Time { return now }

	limiter.Allow("10.0.0.1")
	now = now.Add(visitorIdleTTL + time.Second)
	limiter.Allow("10.0.0.2")

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if _, exists := limiter.visitors["10.0.0.1"]; exists {
		t.Fatalf("expected idle visitor to be swept")
	}
}

func TestRateLimiterMiddlewareReturns429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/ui/click", NewRateLimiter(0.001, 1).Limit(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/ui/click", http.NoBody))
	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/ui/click", http.NoBody))

	if first.Code != http.StatusNoContent {
		t.Fatalf("expected first request through, got %d", first.Code)
	}
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
}
