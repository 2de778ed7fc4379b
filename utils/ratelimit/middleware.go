package ratelimit

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// KeyFunc picks the identity a request is counted against.
type KeyFunc func(c *gin.Context) string

// ByUserOrIP counts authenticated requests per user and anonymous ones per
// client IP.
func ByUserOrIP(c *gin.Context) string {
	if userID := c.GetString("user_id"); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.ClientIP()
}

// Middleware rejects requests over rule with 429. Limiter errors are treated
// as 503 so a fail-closed limiter never silently admits traffic.
func Middleware(limiter Limiter, rule Rule, key KeyFunc) gin.HandlerFunc {
	if key == nil {
		key = ByUserOrIP
	}
	return func(c *gin.Context) {
		allowed, err := limiter.Allow(c.Request.Context(), key(c), rule)
		if err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "rate limiter unavailable",
				"code":  "unavailable",
			})
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests",
				"code":  "rate_limited",
			})
			return
		}
		c.Next()
	}
}
