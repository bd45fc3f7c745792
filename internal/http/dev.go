package http

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

type MaintenanceService interface {
	IsEnabled(ctx context.Context) (bool, error)
	SetMode(ctx context.Context, enabled bool) (bool, error)
}

type maintenanceReq struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// setMaintenanceHandler toggles maintenance mode. Only configured developers may call it.
func setMaintenanceHandler(svc MaintenanceService, developers map[uint64]struct{}) echo.HandlerFunc {
	return func(c echo.Context) error {
		inv, ok := invocation(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		if _, ok := developers[inv.UserID]; !ok {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
		}

		var req maintenanceReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		if err := validate.Struct(req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		}

		changed, err := svc.SetMode(c.Request().Context(), *req.Enabled)
		if err != nil {
			log.Errorf("set maintenance mode failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"enabled": *req.Enabled,
			"changed": changed,
		})
	}
}
