package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"basegraph.app/booking/common/id"
	"basegraph.app/booking/common/logger"
)

// quietPaths are probed by load balancers and scrapers and only logged on failure.
var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// Logger logs one line per request. Requests addressed to an app instance
// carry its id in the request context so that handler and provider logs are
// tagged with it.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + redactQuery(c)
		}

		if appID, ok := requestAppID(c); ok {
			ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{
				AppID:     &appID,
				Component: "booking.http",
			})
			c.Request = c.Request.WithContext(ctx)
		}

		c.Next()

		status := c.Writer.Status()
		if quietPaths[c.FullPath()] && status < 500 {
			return
		}

		ctx := c.Request.Context()
		attrs := []any{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			slog.ErrorContext(ctx, "request failed", attrs...)
		case status >= 400:
			slog.WarnContext(ctx, "request error", attrs...)
		default:
			slog.InfoContext(ctx, "request", attrs...)
		}
	}
}

func requestAppID(c *gin.Context) (int64, bool) {
	for _, name := range []string{"id", "app_id"} {
		if raw := c.Param(name); raw != "" {
			if v, err := id.Parse(raw); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}

// redactQuery hides OAuth codes and state from request logs.
func redactQuery(c *gin.Context) string {
	q := c.Request.URL.Query()
	for _, key := range []string{"code", "state"} {
		if q.Has(key) {
			q.Set(key, "redacted")
		}
	}
	return q.Encode()
}
