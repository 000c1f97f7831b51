package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type HealthStatus struct {
	Status string `json:"status" example:"ok"`
}

// SetHealthCheck installs the probe the liveness endpoint runs.
func (h *Handler) SetHealthCheck(check func(ctx context.Context) error) {
	h.health = check
}

func (h *Handler) Healthz(c echo.Context) error {
	if h.health != nil {
		if err := h.health(c.Request().Context()); err != nil {
			if h.logger != nil {
				h.logger.Warn("health check failed", zap.Error(err))
			}
			return c.JSON(http.StatusServiceUnavailable, Envelope{
				Message: "service unavailable",
				Data:    HealthStatus{Status: "unavailable"},
			})
		}
	}
	return ok(c, "", HealthStatus{Status: "ok"})
}
