package ratelimit

import (
	"github.com/gin-gonic/gin"

	"github.com/scho1ar-go/pkg/apperrors"
	"github.com/scho1ar-go/pkg/auth/principal"
	"github.com/scho1ar-go/pkg/logger"
	"github.com/scho1ar-go/pkg/metrics"
	"github.com/scho1ar-go/pkg/ratelimit"
)

// Check charges the request against limiter. Requests that already carry a
// principal are keyed by subject, others by client IP, so it must run after
// authentication on protected routes. When the limiter itself fails the
// request is let through.
func Check(limiter ratelimit.Limiter, log logger.Logger) func(*gin.Context) error {
	return func(c *gin.Context) error {
		key := Key(c)
		allowed, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			log.Warn("rate limiter unavailable", "error", err)
			return nil
		}
		if !allowed {
			metrics.RateLimited.Inc()
			c.Header("Retry-After", "1")
			return apperrors.RateLimited(key)
		}
		return nil
	}
}

// Key identifies the caller a request is charged to.
func Key(c *gin.Context) string {
	if p, ok := principal.FromContext(c.Request.Context()); ok {
		return "sub:" + p.SubjectID
	}
	return "ip:" + c.ClientIP()
}
