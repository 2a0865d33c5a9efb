// metrics.go records Prometheus metrics for every request passing through the
// router.
package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agent-registry/agent-registry/internal/telemetry"
)

// MetricsMiddleware returns a Gin handler that records request count and
// duration for every request.
//
// The path label is set from c.FullPath(), the matched route template
// (e.g. /v1/orgs/:org/agents/:name) rather than the raw URL, so label
// cardinality stays bounded. Requests that match no registered route use the
// literal "<no-route>".
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

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
