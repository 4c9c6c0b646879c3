// metrics.go instruments every routed request with the Prometheus HTTP metrics.
package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oneira/oneira/internal/telemetry"
)

// MetricsMiddleware records http_requests_total{method,path,status} and
// http_request_duration_seconds{method,path} for every routed request.
//
// The path label comes from c.FullPath(), the matched route template
// (e.g. /v1/dreams/:id/generate), never the raw URL — one series per dream ID
// would blow up cardinality. Unmatched requests (404/405) share the literal
// "<no-route>" series for the same reason.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// Resolve the route template; fall back for 404/405 situations.
		path := c.FullPath()
		if path == "" {
			path = "<no-route>"
		}

		duration := time.Since(start).Seconds()
		method := c.Request.Method
		status := fmt.Sprintf("%d", c.Writer.Status())

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}
