package middleware

import (
	"context"
	"log"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"intake/internal/ratelimit"
)

// Limiter is the quota backend; *ratelimit.Quota in production.
type Limiter interface {
	Allow(ctx context.Context, scope, client string, limit int) (ratelimit.Decision, error)
}

// Quota rejects clients over limit requests per window in scope with 429.
// When the backend fails the request passes if failOpen is set, else 503.
func Quota(l Limiter, scope string, limit int, failOpen bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || limit <= 0 {
			c.Next()
			return
		}
		d, err := l.Allow(c.Request.Context(), scope, c.ClientIP(), limit)
		if err != nil {
			log.Printf("[quota][%s] ip=%s err=%v", scope, c.ClientIP(), err)
			if failOpen {
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, try again"})
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(max(int64(limit)-d.Count, 0), 10))
		if !d.Allowed {
			secs := int(math.Ceil(d.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(max(secs, 1)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, try later"})
			return
		}
		c.Next()
	}
}
