// internal/middleware/rate_limit.go
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/keyshop-bot/internal/utils"
)

// RateLimit throttles requests per client IP.
func RateLimit(limiter *utils.KeyedLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			utils.TooManyRequestsResponse(c)
			c.Abort()
			return
		}

		c.Next()
	}
}
