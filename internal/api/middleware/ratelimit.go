package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"emergency-backend/pkg/ratelimit"

	"github.com/gin-gonic/gin"
)

// RateLimitMiddleware enforces per-client request budgets. A limiter
// failure (Redis down) lets the request through; availability of the alert
// path beats spam protection.
func RateLimitMiddleware(limiter ratelimit.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := clientID(c)
		endpoint := c.Request.Method + ":" + c.FullPath()

		allowed, resetTime, err := limiter.Allow(clientID, endpoint)
		if err != nil {
			c.Header("X-RateLimit-Error", "Rate limiter unavailable")
			c.Next()
			return
		}

		limit := limiter.LimitFor(endpoint)
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limit.BurstSize))

		if !allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", int(resetTime.Seconds())))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":      "Rate limit exceeded",
				"message":    fmt.Sprintf("Too many requests. Try again in %v", resetTime),
				"retryAfter": int(resetTime.Seconds()),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// clientID identifies the caller: authenticated user id when present,
// otherwise client IP.
func clientID(c *gin.Context) string {
	if userID, exists := c.Get("user_id"); exists {
		if uid, ok := userID.(string); ok && uid != "" {
			return "user:" + uid
		}
	}

	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		return "ip:" + strings.TrimSpace(ips[0])
	}
	return "ip:" + c.ClientIP()
}
