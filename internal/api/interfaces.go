// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/studyhub/backend/internal/events"
	"github.com/studyhub/backend/internal/models"
)

// UploadHandler handles upload lifecycle operations
type UploadHandler interface {
	HandleListUploads(c echo.Context) error
	HandleListUploadsMsgpack(c echo.Context) error
	HandleGetUpload(c echo.Context) error
	HandleIngestFiles(c echo.Context) error
	HandleIngestDescriptors(c echo.Context) error
	HandleRetryUpload(c echo.Context) error
	HandleRemoveUpload(c echo.Context) error
	HandleUploadStream(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// UploadManager defines the interface for the upload lifecycle manager
// This allows mocking in tests
type UploadManager interface {
	Ingest(files []models.FileDescriptor) []models.UploadItem
	Retry(id string)
	Remove(id string)
	Snapshot() []models.UploadItem
	SnapshotVersion() (uint64, []models.UploadItem)
	Get(id string) (models.UploadItem, bool)
	Subscribe() (<-chan events.Event, func())
}
