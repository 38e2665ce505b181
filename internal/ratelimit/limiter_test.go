package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/topiga/currency/internal/config"
	"github.com/topiga/currency/internal/testutils"
)

func newTestLimiter(t *testing.T, enabled bool, requests, burst int, window time.Duration) (*Limiter, *time.Time) {
	t.Helper()
	limiter := NewLimiter(&config.Config{
		RateLimitEnabled:  enabled,
		RateLimitRequests: requests,
		RateLimitWindow:   window,
		RateLimitBurst:    burst,
	}, testutils.MockLogger())
	t.Cleanup(limiter.Stop)

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return clock }
	return limiter, &clock
}

func TestLimiter_Allow(t *testing.T) {
	limiter, _ := newTestLimiter(t, true, 60, 3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("10.0.0.1"), "request %d within burst", i+1)
	}
	assert.False(t, limiter.Allow("10.0.0.1"), "burst exhausted")
	assert.True(t, limiter.Allow("10.0.0.2"), "other clients have their own bucket")
}

func TestLimiter_Refill(t *testing.T) {
	limiter, clock := newTestLimiter(t, true, 60, 2, time.Minute)

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))

	*clock = clock.Add(500 * time.Millisecond)
	assert.False(t, limiter.Allow("10.0.0.1"), "half a token is not enough")

	*clock = clock.Add(500 * time.Millisecond)
	assert.True(t, limiter.Allow("10.0.0.1"))

	*clock = clock.Add(time.Hour)
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"), "refill is capped at burst")
}

func TestLimiter_Disabled(t *testing.T) {
	limiter, _ := newTestLimiter(t, false, 1, 1, time.Minute)
	for i := 0; i < 10; i++ {
		assert.True(t, limiter.Allow("10.0.0.1"))
	}
}

func TestLimiter_RemoveIdle(t *testing.T) {
	limiter, clock := newTestLimiter(t, true, 60, 1, time.Minute)
	limiter.Allow("10.0.0.1")

	*clock = clock.Add(idleBucketTTL + time.Second)
	limiter.removeIdle()

	assert.Empty(t, limiter.clientBuckets)
}

func TestLimiter_GinMiddleware(t *testing.T) {
	limiter, _ := newTestLimiter(t, true, 100, 1, time.Minute)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(limiter.GinMiddleware())
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "100", second.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", second.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, second.Header().Get("X-RateLimit-Reset"))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expected   string
	}{
		{"remote addr", nil, "192.0.2.1:1234", "192.0.2.1"},
		{"forwarded for single", map[string]string{"X-Forwarded-For": "203.0.113.5"}, "192.0.2.1:1234", "203.0.113.5"},
		{"forwarded for chain", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "192.0.2.1:1234", "203.0.113.5"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.7"}, "192.0.2.1:1234", "198.51.100.7"},
		{"garbage header ignored", map[string]string{"X-Forwarded-For": "not-an-ip"}, "192.0.2.1:1234", "192.0.2.1"},
		{"remote addr without port", nil, "192.0.2.9", "192.0.2.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for key, value := range tt.headers {
				req.Header.Set(key, value)
			}
			assert.Equal(t, tt.expected, ClientIP(req))
		})
	}
}
