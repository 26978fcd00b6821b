package api

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/sentinel/internal/observability"
)

// LoggingMiddleware emits one structured line per request and feeds the
// latency histogram.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()

		observability.HTTPRequestDuration.WithLabelValues(
			c.Request.Method, path, strconv.Itoa(status),
		).Observe(elapsed.Seconds())

		slog.Info("http request",
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}
