package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/topiga/currency/internal/config"
)

// idleBucketTTL is how long an untouched client bucket is kept.
const idleBucketTTL = 24 * time.Hour

// Limiter implements a token bucket rate limiter per client IP
type Limiter struct {
	enabled  bool
	requests int
	window   time.Duration
	burst    int
	logger   *logrus.Logger
	now      func() time.Time

	clientBuckets map[string]*tokenBucket
	bucketsMutex  sync.Mutex

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	stopOnce      sync.Once
}

// tokenBucket holds up to capacity tokens, refilled at rate tokens per second
type tokenBucket struct {
	capacity   float64
	tokens     float64
	rate       float64
	lastRefill time.Time
}

// NewLimiter creates a new rate limiter and starts its cleanup loop
func NewLimiter(configuration *config.Config, logger *logrus.Logger) *Limiter {
	rateLimiter := &Limiter{
		enabled:       configuration.RateLimitEnabled,
		requests:      configuration.RateLimitRequests,
		window:        configuration.RateLimitWindow,
		burst:         configuration.RateLimitBurst,
		logger:        logger,
		now:           time.Now,
		clientBuckets: make(map[string]*tokenBucket),
		cleanupTicker: time.NewTicker(5 * time.Minute),
		stopCleanup:   make(chan struct{}),
	}

	go rateLimiter.cleanup()

	return rateLimiter
}

// Allow checks if a request from the given IP is allowed
func (rateLimiter *Limiter) Allow(clientIP string) bool {
	if !rateLimiter.enabled {
		return true
	}

	rateLimiter.bucketsMutex.Lock()
	defer rateLimiter.bucketsMutex.Unlock()

	currentTime := rateLimiter.now()
	bucket, exists := rateLimiter.clientBuckets[clientIP]
	if !exists {
		bucket = &tokenBucket{
			capacity:   float64(rateLimiter.burst),
			tokens:     float64(rateLimiter.burst),
			rate:       rateLimiter.refillRate(),
			lastRefill: currentTime,
		}
		rateLimiter.clientBuckets[clientIP] = bucket
	}

	return bucket.take(currentTime)
}

func (rateLimiter *Limiter) refillRate() float64 {
	if rateLimiter.window <= 0 {
		return float64(rateLimiter.requests)
	}
	return float64(rateLimiter.requests) / rateLimiter.window.Seconds()
}

// GinMiddleware rejects requests over the limit with 429 and X-RateLimit headers
func (rateLimiter *Limiter) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := ClientIP(c.Request)

		if !rateLimiter.Allow(clientIP) {
			rateLimiter.logger.Warnf("Rate limit exceeded for IP: %s", clientIP)
			c.Header("X-RateLimit-Limit", strconv.Itoa(rateLimiter.requests))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", strconv.FormatInt(rateLimiter.now().Add(rateLimiter.window).Unix(), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}

		c.Next()
	}
}

// ClientIP extracts the real client IP from the request
func ClientIP(request *http.Request) string {
	if xForwardedFor := request.Header.Get("X-Forwarded-For"); xForwardedFor != "" {
		first := strings.TrimSpace(strings.Split(xForwardedFor, ",")[0])
		if clientIP := net.ParseIP(first); clientIP != nil {
			return clientIP.String()
		}
	}

	if xRealIP := strings.TrimSpace(request.Header.Get("X-Real-IP")); xRealIP != "" {
		if clientIP := net.ParseIP(xRealIP); clientIP != nil {
			return clientIP.String()
		}
	}

	clientIP, _, parseError := net.SplitHostPort(request.RemoteAddr)
	if parseError != nil {
		return request.RemoteAddr
	}
	return clientIP
}

// cleanup removes idle buckets to prevent memory leaks
func (rateLimiter *Limiter) cleanup() {
	for {
		select {
		case <-rateLimiter.cleanupTicker.C:
			rateLimiter.removeIdle()
		case <-rateLimiter.stopCleanup:
			rateLimiter.cleanupTicker.Stop()
			return
		}
	}
}

func (rateLimiter *Limiter) removeIdle() {
	rateLimiter.bucketsMutex.Lock()
	defer rateLimiter.bucketsMutex.Unlock()

	currentTime := rateLimiter.now()
	for clientIP, bucket := range rateLimiter.clientBuckets {
		if currentTime.Sub(bucket.lastRefill) > idleBucketTTL {
			delete(rateLimiter.clientBuckets, clientIP)
		}
	}
}

// Stop stops the cleanup goroutine. Safe to call more than once.
func (rateLimiter *Limiter) Stop() {
	rateLimiter.stopOnce.Do(func() {
		close(rateLimiter.stopCleanup)
	})
}

// take refills for the elapsed time and consumes one token if available
func (bucket *tokenBucket) take(currentTime time.Time) bool {
	if elapsed := currentTime.Sub(bucket.lastRefill); elapsed > 0 {
		bucket.tokens += elapsed.Seconds() * bucket.rate
		if bucket.tokens > bucket.capacity {
			bucket.tokens = bucket.capacity
		}
		bucket.lastRefill = currentTime
	}

	if bucket.tokens >= 1 {
		bucket.tokens--
		return true
	}
	return false
}
