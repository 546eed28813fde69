package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"wiselib/api/internal/metrics"
)

// Metrics records request counts and latency by route template.
func Metrics(m *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RecordRequest(route, c.Writer.Status(), time.Since(start))
	}
}
