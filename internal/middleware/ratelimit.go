// ratelimit.go provides the Gin middleware that gates the public form
// endpoints behind the Redis sliding-window limiter, returning 429 responses
// when a client identifier exceeds the configured window.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/formgate/formgate/internal/ratelimit"
)

// unknownClientKey is the sentinel identifier used when no client address can
// be extracted from the request. All such requests share one rate bucket.
const unknownClientKey = "unknown"

// ClientIP extracts the client address from inbound request metadata, or ""
// when none is present.
//
// Precedence: the trusted edge-proxy header (configured, e.g. CF-Connecting-IP)
// first, then X-Real-IP, then the first hop of X-Forwarded-For. Later
// X-Forwarded-For hops are proxy addresses appended by infrastructure, and
// trusting them would let a client escape its bucket by spoofing.
func ClientIP(c *gin.Context, trustedHeader string) string {
	if trustedHeader != "" {
		if ip := strings.TrimSpace(c.GetHeader(trustedHeader)); ip != "" {
			return ip
		}
	}

	if ip := strings.TrimSpace(c.GetHeader("X-Real-IP")); ip != "" {
		return ip
	}

	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}

	return ""
}

// ClientKey maps the extracted client address to a rate bucket identifier,
// falling back to the shared "unknown" sentinel bucket.
func ClientKey(c *gin.Context, trustedHeader string) string {
	if ip := ClientIP(c, trustedHeader); ip != "" {
		return "ip:" + ip
	}
	return unknownClientKey
}

// RateLimitMiddleware creates a Gin middleware that enforces the sliding
// window via checker. Denied requests receive 429 with Retry-After; allowed
// requests carry X-RateLimit-* headers so well-behaved clients can pace
// themselves.
func RateLimitMiddleware(checker ratelimit.Checker, trustedHeader string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := ClientKey(c, trustedHeader)

		d := checker.Check(c.Request.Context(), key)

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

		if !d.Allowed {
			retryAfter := int(time.Until(d.ResetAt).Seconds()) + 1
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}
