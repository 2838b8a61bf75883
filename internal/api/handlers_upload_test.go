// handlers_upload_test.go - Tests for upload handlers
package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/studyhub/backend/internal/events"
	"github.com/studyhub/backend/internal/models"
	"github.com/studyhub/backend/internal/testutil"
	"github.com/studyhub/backend/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func newTestUploads(t *testing.T, resolver upload.Resolver) (*upload.Manager, *testutil.ManualClock) {
	t.Helper()
	clk := testutil.NewManualClock()
	m := upload.NewManager(upload.WithClock(clk), upload.WithResolver(resolver))
	t.Cleanup(m.Close)
	return m, clk
}

func newTestServer(t *testing.T, uploads UploadManager) *echo.Echo {
	t.Helper()
	e := echo.New()
	SetupMiddleware(e, MiddlewareConfig{ShowErrorDetails: true})
	RegisterRoutes(e, NewHandlers(&Dependencies{Uploads: uploads, Version: "test", EnableMetrics: true}))
	return e
}

func doRequest(e *echo.Echo, method, target string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeItems(t *testing.T, rec *httptest.ResponseRecorder) []models.UploadItem {
	t.Helper()
	var items []models.UploadItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	return items
}

func TestUploadHandler_HandleIngestDescriptors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCount  int
		errCode    string
	}{
		{
			name:       "single text file",
			body:       `{"files":[{"name":"notes.txt","size":500,"type":"text/plain"}]}`,
			wantStatus: http.StatusCreated,
			wantCount:  1,
		},
		{
			name:       "several files keep order",
			body:       `{"files":[{"name":"a.pdf","size":1,"type":"application/pdf"},{"name":"b.png","size":2,"type":"image/png"},{"name":"c"}]}`,
			wantStatus: http.StatusCreated,
			wantCount:  3,
		},
		{
			name:       "empty list",
			body:       `{"files":[]}`,
			wantStatus: http.StatusCreated,
			wantCount:  0,
		},
		{
			name:       "malformed json",
			body:       `{"files":`,
			wantStatus: http.StatusBadRequest,
			errCode:    "BAD_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uploads, _ := newTestUploads(t, upload.AlwaysSucceed)
			handler := NewUploadHandler(uploads)

			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/api/uploads/descriptors", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := handler.HandleIngestDescriptors(c)

			if tt.errCode != "" {
				require.Error(t, err)
				apiErr, ok := err.(*APIError)
				require.True(t, ok, "expected APIError, got %T", err)
				assert.Equal(t, tt.wantStatus, apiErr.Status)
				assert.Equal(t, tt.errCode, apiErr.Code)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, rec.Code)
			items := decodeItems(t, rec)
			require.Len(t, items, tt.wantCount)
			for _, item := range items {
				assert.NotEmpty(t, item.ID)
				assert.Equal(t, models.UploadStatusUploading, item.Status)
				assert.Equal(t, 0, item.Progress)
			}
			assert.Len(t, uploads.Snapshot(), tt.wantCount)
		})
	}
}

func TestUploadHandler_HandleIngestFiles(t *testing.T) {
	uploads, _ := newTestUploads(t, upload.AlwaysSucceed)
	e := newTestServer(t, uploads)

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="files"; filename="lecture.pdf"`)
	header.Set("Content-Type", "application/pdf")
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	part.Write(make([]byte, 2048))

	part, err = writer.CreateFormFile("files", "notes.txt")
	require.NoError(t, err)
	part.Write([]byte("hello"))
	require.NoError(t, writer.Close())

	rec := doRequest(e, http.MethodPost, "/api/uploads", body.Bytes(), writer.FormDataContentType())
	require.Equal(t, http.StatusCreated, rec.Code)

	items := decodeItems(t, rec)
	require.Len(t, items, 2)
	assert.Equal(t, "lecture.pdf", items[0].Name)
	assert.Equal(t, int64(2048), items[0].SizeBytes)
	assert.Equal(t, "application/pdf", items[0].MimeType)
	assert.Equal(t, models.FileKindPDF, items[0].Kind)
	assert.Equal(t, "2 KB", items[0].SizeLabel)
	assert.Equal(t, "notes.txt", items[1].Name)
	assert.Equal(t, int64(5), items[1].SizeBytes)

	rec = doRequest(e, http.MethodPost, "/api/uploads", []byte("not multipart"), "text/plain")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "BAD_REQUEST")
}

func TestUploadHandler_Lifecycle(t *testing.T) {
	uploads, clk := newTestUploads(t, upload.AlwaysFail)
	e := newTestServer(t, uploads)

	rec := doRequest(e, http.MethodPost, "/api/uploads/descriptors",
		[]byte(`{"files":[{"name":"notes.txt","size":500,"type":"text/plain"}]}`), echo.MIMEApplicationJSON)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeItems(t, rec)[0].ID

	clk.Advance(3 * time.Second)
	rec = doRequest(e, http.MethodGet, "/api/uploads/"+id, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var item models.UploadItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.Equal(t, models.UploadStatusProcessing, item.Status)
	assert.Equal(t, 100, item.Progress)

	clk.Advance(time.Second)
	rec = doRequest(e, http.MethodGet, "/api/uploads", nil, "")
	items := decodeItems(t, rec)
	require.Len(t, items, 1)
	assert.Equal(t, models.UploadStatusError, items[0].Status)
	assert.Equal(t, upload.ProcessingFailureMessage, items[0].ErrorMessage)
	assert.Contains(t, rec.Body.String(), `"errorMessage"`)

	rec = doRequest(e, http.MethodPost, "/api/uploads/"+id+"/retry", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	retried, _ := uploads.Get(id)
	assert.Equal(t, models.UploadStatusUploading, retried.Status)
	assert.Equal(t, 0, retried.Progress)

	rec = doRequest(e, http.MethodGet, "/api/uploads", nil, "")
	assert.NotContains(t, rec.Body.String(), `"errorMessage"`)

	rec = doRequest(e, http.MethodDelete, "/api/uploads/"+id, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, uploads.Snapshot())

	rec = doRequest(e, http.MethodGet, "/api/uploads/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}

func TestUploadHandler_UnknownIDsAreNoOps(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
	}{
		{"retry", http.MethodPost, "/api/uploads/missing/retry"},
		{"remove", http.MethodDelete, "/api/uploads/missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uploads, _ := newTestUploads(t, upload.AlwaysSucceed)
			uploads.Ingest([]models.FileDescriptor{{Name: "keep.txt"}})
			e := newTestServer(t, uploads)

			rec := doRequest(e, tt.method, tt.target, nil, "")
			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Len(t, uploads.Snapshot(), 1)
		})
	}
}

func TestUploadHandler_HandleListUploadsMsgpack(t *testing.T) {
	uploads, _ := newTestUploads(t, upload.AlwaysSucceed)
	uploads.Ingest([]models.FileDescriptor{{Name: "photo.jpg", Size: 3 * 1024 * 1024, Type: "image/jpeg"}})
	e := newTestServer(t, uploads)

	rec := doRequest(e, http.MethodGet, "/api/uploads/msgpack", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get(echo.HeaderContentType))

	var items []models.UploadItem
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "photo.jpg", items[0].Name)
	assert.Equal(t, models.FileKindImage, items[0].Kind)
	assert.Equal(t, "3 MB", items[0].SizeLabel)
}

func TestHealthAndMetrics(t *testing.T) {
	uploads, _ := newTestUploads(t, upload.AlwaysSucceed)
	uploads.Ingest([]models.FileDescriptor{{Name: "a"}, {Name: "b"}})
	e := newTestServer(t, uploads)

	rec := doRequest(e, http.MethodGet, "/api/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, float64(2), body["uploads"])

	rec = doRequest(e, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUploadHandler_HandleUploadStream(t *testing.T) {
	uploads, clk := newTestUploads(t, upload.AlwaysSucceed)
	uploads.Ingest([]models.FileDescriptor{{Name: "first.txt"}})
	srv := httptest.NewServer(newTestServer(t, uploads))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/uploads/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() events.Event {
		t.Helper()
		var ev events.Event
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "data: ") {
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
				return ev
			}
		}
	}

	initial := readEvent()
	assert.Equal(t, events.EventSnapshot, initial.Type)
	assert.Equal(t, uint64(1), initial.Version, "first frame carries the ingest version")
	require.Len(t, initial.Items, 1)
	assert.Equal(t, "first.txt", initial.Items[0].Name)

	// The subscription is registered before the initial snapshot is written.
	clk.Advance(300 * time.Millisecond)
	next := readEvent()
	require.Len(t, next.Items, 1)
	assert.Equal(t, 10, next.Items[0].Progress)
	assert.Equal(t, initial.Version+1, next.Version)
}
