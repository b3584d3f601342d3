package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gurukul-lms/gurukul-api/internal/service"
)

// unscraped routes are probes whose latency would only dilute the averages.
var unscraped = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// Metrics records latency per route template, never per raw path, so ids in
// URLs do not explode label cardinality. Unknown routes share one label.
func Metrics(metrics *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if metrics == nil || unscraped[route] {
			c.Next()
			return
		}
		done := metrics.RequestStarted()
		start := time.Now()
		c.Next()
		done()

		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
