package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the request identifier on the wire, both
	// inbound (from a gateway or upstream caller) and echoed on the response.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is where the identifier lives in gin.Context. The request
	// logger in internal/api reads it from here rather than re-parsing the
	// header.
	RequestIDKey = "request_id"
)

// RequestIDMiddleware tags every request with an identifier. An inbound
// X-Request-ID is trusted and reused so a caller-side trace survives the hop;
// absent that, a fresh UUID v4 is minted. The ID is stored under RequestIDKey
// and echoed on the response so a prospect reporting "access denied" can quote
// a value that finds the exact denial in the structured logs.
//
// Register it before the logging and metrics middleware so every log line
// downstream carries the ID.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}
