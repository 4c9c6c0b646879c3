package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the request identifier between clients, proxies,
	// and this service.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key holding the request ID string.
	RequestIDKey = "request_id"

	// maxRequestIDLength caps inbound identifiers so a hostile client cannot
	// inflate every log line of the request.
	maxRequestIDLength = 128
)

// RequestIDMiddleware assigns each request a correlation identifier. An
// X-Request-ID supplied by an upstream proxy or the caller is reused
// (truncated if oversized); otherwise a fresh UUID is minted. The ID is stored
// in the gin context for the logger and audit middleware and echoed in the
// response header so clients can quote it when reporting problems.
//
// Register it before any middleware that logs.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		switch {
		case id == "":
			id = uuid.New().String()
		case len(id) > maxRequestIDLength:
			id = id[:maxRequestIDLength]
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}
