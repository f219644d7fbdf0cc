// Package middleware holds gin middleware specific to the API surface.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// httpObserver is satisfied by the metrics service.
type httpObserver interface {
	ObserveHTTPRequest(method, path string, status int, duration time.Duration)
}

// Metrics records per-request Prometheus metrics.
func Metrics(observer httpObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		observer.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
