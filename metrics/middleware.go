package metrics

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Middleware counts requests by route template so path parameters do not
// explode label cardinality.
func Middleware(m *Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if m == nil {
				return err
			}

			status := c.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.RecordRequest(c.Request().Method, route, strconv.Itoa(status))
			return err
		}
	}
}
