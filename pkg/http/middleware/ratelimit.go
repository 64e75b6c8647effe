package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// AllowFunc reports whether a request identified by key may proceed.
type AllowFunc func(key string) bool

// RateLimit rejects requests with 429 when allow returns false for the client IP.
// Only paths accepted by match are limited; a nil match limits everything.
func RateLimit(allow AllowFunc, match func(path string) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if match != nil && !match(c.Path()) {
				return next(c)
			}
			if !allow(c.RealIP()) {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"status":  http.StatusTooManyRequests,
					"message": http.StatusText(http.StatusTooManyRequests),
				})
			}
			return next(c)
		}
	}
}
