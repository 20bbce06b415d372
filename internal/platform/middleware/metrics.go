package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/genetica/genetica/internal/platform/metrics"
)

// Metrics records request latency labelled by the matched route pattern, not
// the raw path, so record ids do not explode label cardinality.
func Metrics(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.ObserveRequest(c.Request().Method, route, strconv.Itoa(status/100)+"xx", time.Since(start))
			return err
		}
	}
}
