// servicekey.go provides the Gin middleware protecting the internal /api/v1
// surface (link issuance, revocation, access-log queries, maintenance). The
// front-door /form endpoints are deliberately unauthenticated — prospects
// present only their link token, which internal/auth verifies.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ServiceKeyMiddleware requires "Authorization: Bearer <service key>" and
// compares in constant time. An empty configured key locks the surface down
// entirely rather than leaving it open.
func ServiceKeyMiddleware(serviceKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing or invalid authorization header",
			})
			return
		}

		presented := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

		if serviceKey == "" ||
			subtle.ConstantTimeCompare([]byte(presented), []byte(serviceKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid service key",
			})
			return
		}

		c.Next()
	}
}
