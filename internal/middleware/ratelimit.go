package middleware

import (
	"context"
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/apperr"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/metrics"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/ratelimit"
	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/response"
)

const MsgTooManyRequests = "Too many requests, please try again later"

type Allower interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
}

// RateLimit throttles a route per client IP. Limiter errors let the request
// through.
func RateLimit(limiter Allower, name string, log zerolog.Logger, render response.Renderer) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision, err := limiter.Allow(c.Request.Context(), name+":"+c.ClientIP())
		if err != nil {
			log.Warn().Err(err).Str("route", name).Msg("rate limiter unavailable")
			c.Next()
			return
		}
		if !decision.Allowed {
			metrics.RateLimitRejectedTotal.WithLabelValues(name).Inc()
			seconds := int(math.Ceil(decision.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(max(seconds, 1)))
			render.Error(c, apperr.TooManyRequests(MsgTooManyRequests))
			return
		}
		c.Next()
	}
}
