package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scout-hq/scout-api/internal/security"
	"github.com/scout-hq/scout-api/internal/service"
	"github.com/scout-hq/scout-api/pkg/config"
	appErrors "github.com/scout-hq/scout-api/pkg/errors"
	"github.com/scout-hq/scout-api/pkg/response"
)

// RatePolicyTable maps routes to (limit, window) pairs. Built once at
// startup from config; request handling only walks the table, it never
// pattern-matches ad hoc on URL substrings.
type RatePolicyTable struct {
	policies      []config.RateLimitPolicy
	defaultLimit  int
	defaultWindow time.Duration
}

// NewRatePolicyTable builds the table from configuration.
func NewRatePolicyTable(cfg config.RateLimitConfig) *RatePolicyTable {
	return &RatePolicyTable{
		policies:      cfg.Policies,
		defaultLimit:  cfg.DefaultLimit,
		defaultWindow: cfg.DefaultWindow,
	}
}

// Resolve returns the policy for a method and path. First matching row
// wins; unmatched routes get the default pair.
func (t *RatePolicyTable) Resolve(method, path string) (int, time.Duration) {
	for _, p := range t.policies {
		if p.Method != "" && p.Method != method {
			continue
		}
		if strings.HasPrefix(path, p.PathPrefix) {
			return p.Limit, p.Window
		}
	}
	return t.defaultLimit, t.defaultWindow
}

// RateLimit throttles by client IP using the sliding-window limiter. Quota
// headers are written on every response so clients can self-throttle. On
// store errors the middleware fails open only when allowOnError is set.
func RateLimit(limiter *security.RateLimiter, table *RatePolicyTable, metrics *service.MetricsService, logger *zap.Logger, allowOnError bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, window := table.Resolve(c.Request.Method, c.Request.URL.Path)
		if limit <= 0 {
			c.Next()
			return
		}

		result, err := limiter.CheckAndRecord(c.Request.Context(), c.ClientIP(), limit, window)
		if err != nil {
			if allowOnError {
				logger.Warn("rate limit store unreachable, allowing request",
					zap.String("path", c.Request.URL.Path), zap.Error(err))
				c.Next()
				return
			}
			response.Error(c, appErrors.ErrServiceUnavailable)
			c.Abort()
			return
		}

		c.Header("X-Rate-Limit-Limit", fmt.Sprintf("%d", result.Limit))
		c.Header("X-Rate-Limit-Remaining", fmt.Sprintf("%d", result.Remaining))
		c.Header("X-Rate-Limit-Reset", fmt.Sprintf("%d", result.ResetAt.Unix()))

		if !result.Allowed {
			retryAfter := int64(result.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			metrics.RecordRateLimitDenial(c.FullPath())
			logger.Warn("rate limit exceeded",
				zap.String("ip", c.ClientIP()),
				zap.String("path", c.Request.URL.Path),
				zap.Int("limit", result.Limit),
			)
			response.Error(c, appErrors.WithMeta(appErrors.ErrTooManyRequests, map[string]interface{}{
				"retry_after": retryAfter,
			}))
			c.Abort()
			return
		}

		c.Next()
	}
}
