package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/showcase/internal/observability/metrics"
)

// NewMetrics records request counts and latency per route pattern. Unmatched
// requests are recorded under "unmatched" to keep label cardinality bounded.
func NewMetrics(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			m.RecordRequest(c.Request().Method, path, status, time.Since(start).Seconds())
			return err
		}
	}
}
