package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const TraderHeader = "X-Trader-ID"

// RateLimiter spaces out requests from the same trader by at least limit.
type RateLimiter struct {
	traders map[string]time.Time
	mu      sync.Mutex
	limit   time.Duration
	now     func() time.Time
}

func NewRateLimiter(limit time.Duration) *RateLimiter {
	return &RateLimiter{
		traders: make(map[string]time.Time),
		limit:   limit,
		now:     time.Now,
	}
}

// Allow records a request from traderID and reports whether it may proceed.
func (r *RateLimiter) Allow(traderID string) bool {
	if r.limit <= 0 {
		return true
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	last, exists := r.traders[traderID]
	if exists && now.Sub(last) < r.limit {
		return false
	}
	r.traders[traderID] = now
	return true
}

func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traderID := c.GetHeader(TraderHeader)
		if traderID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": TraderHeader + " header required"})
			c.Abort()
			return
		}
		if !r.Allow(traderID) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// Logger writes one structured line per request.
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("http request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Info("http request", fields...)
		default:
			logger.Debug("http request", fields...)
		}
	}
}
