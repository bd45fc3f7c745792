package middleware

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

type MaintenanceChecker interface {
	IsEnabled(ctx context.Context) (bool, error)
}

// MaintenanceMiddleware rejects interactions while maintenance mode is on.
// Mount it on groups that must halt; developer routes stay outside.
func MaintenanceMiddleware(m MaintenanceChecker) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			on, err := m.IsEnabled(c.Request().Context())
			if err != nil {
				log.Errorf("maintenance check failed: %v", err)
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
			}
			if on {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "maintenance"})
			}
			return next(c)
		}
	}
}
