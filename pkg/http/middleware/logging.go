package middleware

import (
	"time"

	applogger "KPISentinel/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging writes one debug entry per request. Failures and slow requests are reported by Metrics.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			req, res := c.Request(), c.Response()
			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("uri", req.RequestURI),
				applogger.String("remote", c.RealIP()),
				applogger.Int("status", res.Status),
				applogger.Int64("bytes", res.Size),
				applogger.Duration("duration_ms", time.Since(start)),
			}
			l.Debug("http request", fields...)
			return err
		}
	}
}
