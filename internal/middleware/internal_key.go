package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// InternalKeyHeader carries the shared key of trusted in-cluster callers.
const InternalKeyHeader = "X-Internal-Key"

// InternalKeyAuth guards service-to-service routes. An empty key rejects
// every request.
func InternalKeyAuth(key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := c.Request().Header.Get(InternalKeyHeader)
			if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid internal key")
			}
			return next(c)
		}
	}
}
