package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rinkdesk/ice-booking-api/internal/service"
)

// Metrics returns middleware that captures request metrics using the
// provided service. Requests to skipped paths, such as the scrape endpoint
// and long-lived websocket upgrades, are not observed.
func Metrics(metricsSvc *service.MetricsService, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		if _, ok := skipped[path]; ok {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
