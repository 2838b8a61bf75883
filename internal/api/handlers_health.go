// handlers_health.go - Health check handlers
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	started time.Time
	uploads UploadManager
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, uploads UploadManager) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		started: time.Now(),
		uploads: uploads,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":  "ok",
		"version": h.version,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	}
	if h.uploads != nil {
		resp["uploads"] = len(h.uploads.Snapshot())
	}
	return c.JSON(http.StatusOK, resp)
}
