package handlers

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/rentid/services/maintenance"
	"go.uber.org/zap"
)

type Maintenance interface {
	Cleanup(ctx context.Context) (maintenance.CleanupReport, error)
	PurgePending(ctx context.Context) (maintenance.PurgeReport, error)
}

func (h *Handler) RunCleanup(c echo.Context) error {
	report, err := h.maintenance.Cleanup(c.Request().Context())
	if err != nil {
		return h.respond(c, err)
	}
	if h.logger != nil {
		h.logger.Info("maintenance cleanup triggered over http", zap.Int64("verification_records", report.VerificationRecords))
	}
	return ok(c, "cleanup finished", report)
}

func (h *Handler) RunPurgePending(c echo.Context) error {
	report, err := h.maintenance.PurgePending(c.Request().Context())
	if err != nil {
		return h.respond(c, err)
	}
	if h.logger != nil {
		h.logger.Info("pending user purge triggered over http", zap.Int64("users", report.Users))
	}
	return ok(c, "pending users purged", report)
}
