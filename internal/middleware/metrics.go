package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stpaulclark/merit-api/internal/service"
)

// Metrics observes every request's method, route, status and latency. The
// route template is used where available so /records/:id stays one series
// instead of one per record.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if path == "/metrics" {
			// Scrapes would dominate the histogram.
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
