package oauth

import (
	"net/http"
	"time"

	"crm-platform/pkg/logger"
	"crm-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const attemptKeyPrefix = "auth:attempts:"

// RateLimit caps sign-in attempts per client IP over a fixed window.
// Redis failures fail open: losing the limiter must not lock everyone out.
func RateLimit(rdb *redis.Client, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := utils.AllowAttempt(c.Request.Context(), rdb, attemptKeyPrefix+c.ClientIP(), limit, window)
		if err != nil {
			logger.FromGin(c).Error("attempt limiter unavailable", "err", err)
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many sign-in attempts, try again later"})
			return
		}
		c.Next()
	}
}
