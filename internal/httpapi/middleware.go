package httpapi

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RequestLogger emits one structured log line per handled request.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(context *gin.Context) {
		start := time.Now()
		context.Next()
		logger.Info("http",
			zap.String("method", context.Request.Method),
			zap.String("path", context.Request.URL.Path),
			zap.Int("status", context.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("ip", context.ClientIP()),
			zap.String("ua", context.Request.UserAgent()),
		)
	}
}

// ClientRateLimiter enforces a per-IP request budget with token buckets.
type ClientRateLimiter struct {
	requestsPerSecond rate.Limit
	burst             int
	limitersByIP      map[string]*rate.Limiter
	limitersMutex     sync.Mutex
}

// NewClientRateLimiter creates a limiter allowing requestsPerSecond sustained
// requests per client IP with the given burst.
func NewClientRateLimiter(requestsPerSecond float64, burst int) *ClientRateLimiter {
	return &ClientRateLimiter{
		requestsPerSecond: rate.Limit(requestsPerSecond),
		burst:             burst,
		limitersByIP:      make(map[string]*rate.Limiter),
	}
}

func (limiter *ClientRateLimiter) limiterForIP(clientIP string) *rate.Limiter {
	limiter.limitersMutex.Lock()
	defer limiter.limitersMutex.Unlock()
	existing, found := limiter.limitersByIP[clientIP]
	if found {
		return existing
	}
	created := rate.NewLimiter(limiter.requestsPerSecond, limiter.burst)
	limiter.limitersByIP[clientIP] = created
	return created
}

// Middleware rejects requests exceeding the per-IP budget with 429.
func (limiter *ClientRateLimiter) Middleware() gin.HandlerFunc {
	return func(context *gin.Context) {
		if !limiter.limiterForIP(context.ClientIP()).Allow() {
			context.AbortWithStatusJSON(429, gin.H{"error": "rate_limited"})
			return
		}
		context.Next()
	}
}
