package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/formlane/forms-api/internal/service"
)

// Metrics observes every request for the Prometheus counters. The
// route template is used as the path label so all renders of
// /forms/:id/render share one series instead of one per form.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			// unmatched routes fall back to the raw path
			path = c.Request.URL.Path
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
