package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lcalzada-xor/ridwatch/internal/clock"
)

var start = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func TestRateLimiterAllow(t *testing.T) {
	limiter := NewRateLimiter(3, time.Second, clock.NewMock(start))

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("192.168.1.1"), "request %d", i+1)
	}
	assert.False(t, limiter.Allow("192.168.1.1"), "4th request blocked")
	assert.True(t, limiter.Allow("192.168.1.2"), "other client unaffected")
}

func TestRateLimiterWindowExpiration(t *testing.T) {
	clk := clock.NewMock(start)
	limiter := NewRateLimiter(2, 500*time.Millisecond, clk)

	limiter.Allow("192.168.1.1")
	limiter.Allow("192.168.1.1")
	assert.False(t, limiter.Allow("192.168.1.1"))

	clk.Advance(600 * time.Millisecond)
	assert.True(t, limiter.Allow("192.168.1.1"))
}

func TestRateLimiterCleanup(t *testing.T) {
	clk := clock.NewMock(start)
	limiter := NewRateLimiter(5, 100*time.Millisecond, clk)
	limiter.Allow("192.168.1.1")
	limiter.Allow("192.168.1.2")

	clk.Advance(200 * time.Millisecond)
	limiter.Cleanup()

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.Empty(t, limiter.requests)
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute, clock.NewMock(start))
	h := RateLimitMiddleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/defense/reset", nil)
	req.RemoteAddr = "10.0.0.1:5555"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req.RemoteAddr = "10.0.0.1:6666"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "same host on another port")
}
