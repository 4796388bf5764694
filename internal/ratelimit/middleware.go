package ratelimit

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/credit-risk-whatif/internal/errors"
)

// IPRateLimitMiddleware limits requests per client IP. Blocked requests are handed to the
// error middleware as rate limit errors.
func (rl *RateLimiter) IPRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		result := rl.Allow("ip:" + c.ClientIP())

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			seconds := int(math.Ceil(result.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(seconds))
			_ = c.Error(apperrors.NewRateLimitError(strconv.Itoa(seconds) + "s"))
			c.Abort()
			return
		}

		c.Next()
	}
}
