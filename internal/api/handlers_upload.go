// handlers_upload.go - Upload lifecycle handlers
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/studyhub/backend/internal/events"
	"github.com/studyhub/backend/internal/models"
	"github.com/vmihailenco/msgpack/v5"
)

// sseHeartbeat keeps idle SSE connections open through proxies
const sseHeartbeat = 15 * time.Second

// multipartMemory bounds the in-memory part of multipart parsing; larger
// parts spill to temp files that are removed right after the descriptors
// are read.
const multipartMemory = 1 << 20

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	uploads UploadManager
}

// NewUploadHandler creates a new upload handler instance
func NewUploadHandler(uploads UploadManager) UploadHandler {
	return &UploadHandlerImpl{uploads: uploads}
}

// HandleListUploads returns the full ordered collection
func (h *UploadHandlerImpl) HandleListUploads(c echo.Context) error {
	return c.JSON(http.StatusOK, h.uploads.Snapshot())
}

// HandleListUploadsMsgpack returns the collection encoded as msgpack
func (h *UploadHandlerImpl) HandleListUploadsMsgpack(c echo.Context) error {
	data, err := msgpack.Marshal(h.uploads.Snapshot())
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleGetUpload returns a single item
func (h *UploadHandlerImpl) HandleGetUpload(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	item, ok := h.uploads.Get(id)
	if !ok {
		return NewNotFoundError("upload", id)
	}
	return c.JSON(http.StatusOK, item)
}

// HandleIngestFiles registers every file of a multipart form.
// Only the part headers are used; contents are discarded.
func (h *UploadHandlerImpl) HandleIngestFiles(c echo.Context) error {
	if err := c.Request().ParseMultipartForm(multipartMemory); err != nil {
		return NewBadRequestError("invalid multipart form", err)
	}
	form := c.Request().MultipartForm
	defer form.RemoveAll()

	var files []models.FileDescriptor
	for _, field := range []string{"files", "file"} {
		for _, fh := range form.File[field] {
			files = append(files, models.FileDescriptor{
				Name: fh.Filename,
				Size: fh.Size,
				Type: fh.Header.Get(echo.HeaderContentType),
			})
		}
	}

	return c.JSON(http.StatusCreated, h.uploads.Ingest(files))
}

// HandleIngestDescriptors registers files described in a JSON body
func (h *UploadHandlerImpl) HandleIngestDescriptors(c echo.Context) error {
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	return c.JSON(http.StatusCreated, h.uploads.Ingest(req.Files))
}

// HandleRetryUpload restarts a failed item. Unknown ids and items that are
// not in error state are ignored.
func (h *UploadHandlerImpl) HandleRetryUpload(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	h.uploads.Retry(id)
	return c.NoContent(http.StatusNoContent)
}

// HandleRemoveUpload removes an item in any state. Unknown ids are ignored.
func (h *UploadHandlerImpl) HandleRemoveUpload(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	h.uploads.Remove(id)
	return c.NoContent(http.StatusNoContent)
}

// HandleUploadStream streams a snapshot after every mutation via SSE
func (h *UploadHandlerImpl) HandleUploadStream(c echo.Context) error {
	ch, cancel := h.uploads.Subscribe()
	defer cancel()

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	version, items := h.uploads.SnapshotVersion()
	initial := events.Event{
		Type:      events.EventSnapshot,
		Version:   version,
		Items:     items,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := writeSSE(c, initial); err != nil {
		return nil
	}

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := writeSSE(c, ev); err != nil {
				return nil
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(c.Response(), ": ping\n\n"); err != nil {
				return nil
			}
			c.Response().Flush()
		}
	}
}

func writeSSE(c echo.Context, ev events.Event) error {
	data, err := events.MarshalEvent(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}

// Request/Response types

type ingestRequest struct {
	Files []models.FileDescriptor `json:"files"`
}
