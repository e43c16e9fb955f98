package server

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// rateLimiter is a fixed-window per-client limiter. State is local to
// the process, which is enough for a single-instance operator API.
type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*rateBucket
}

type rateBucket struct {
	windowStart time.Time
	count       int
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*rateBucket),
	}
}

func (l *rateLimiter) allow(clientKey string, now time.Time) bool {
	if l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[clientKey]
	if !ok || now.Sub(bucket.windowStart) >= l.window {
		l.buckets[clientKey] = &rateBucket{windowStart: now, count: 1}
		l.sweep(now)
		return true
	}
	if bucket.count >= l.limit {
		return false
	}
	bucket.count++
	return true
}

// sweep drops stale buckets; called under the lock on window rollover.
func (l *rateLimiter) sweep(now time.Time) {
	for key, bucket := range l.buckets {
		if now.Sub(bucket.windowStart) >= 2*l.window {
			delete(l.buckets, key)
		}
	}
}

func (l *rateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := c.GetString("api_key_name")
		if clientKey == "" {
			clientKey = c.ClientIP()
		}
		if !l.allow(clientKey, time.Now()) {
			abortWithError(c, errRateLimited)
			return
		}
		c.Next()
	}
}
