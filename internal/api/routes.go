// routes.go - Route registration helpers
package api

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/studyhub/backend/internal/metrics"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Uploads              UploadManager
	Version              string
	WebSocketReadLimitKB int
	EnableMetrics        bool
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Upload    UploadHandler
	WebSocket *WebSocketHandler
	metrics   bool
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.Uploads),
		Upload:    NewUploadHandler(deps.Uploads),
		WebSocket: NewWebSocketHandler(deps.Uploads, deps.WebSocketReadLimitKB),
		metrics:   deps.EnableMetrics,
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Upload lifecycle
	uploads := apiGroup.Group("/uploads")
	uploads.GET("", handlers.Upload.HandleListUploads)
	uploads.POST("", handlers.Upload.HandleIngestFiles)
	uploads.POST("/descriptors", handlers.Upload.HandleIngestDescriptors)
	uploads.GET("/msgpack", handlers.Upload.HandleListUploadsMsgpack)
	uploads.GET("/stream", handlers.Upload.HandleUploadStream)
	uploads.GET("/:id", handlers.Upload.HandleGetUpload)
	uploads.POST("/:id/retry", handlers.Upload.HandleRetryUpload)
	uploads.DELETE("/:id", handlers.Upload.HandleRemoveUpload)

	// WebSocket endpoint
	apiGroup.GET("/ws/uploads", handlers.WebSocket.HandleWebSocket)

	if handlers.metrics {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}
}

// MiddlewareConfig holds the API-level middleware settings
type MiddlewareConfig struct {
	ShowErrorDetails bool
	// HandlerTimeout bounds non-stream requests. Zero disables it.
	HandlerTimeout time.Duration
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg MiddlewareConfig) {
	e.HTTPErrorHandler = NewErrorHandler(cfg.ShowErrorDetails)

	if cfg.HandlerTimeout > 0 {
		e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
			Timeout:      cfg.HandlerTimeout,
			Skipper:      IsStreamRequest,
			ErrorMessage: "Request timeout",
		}))
	}
}

// IsStreamRequest reports whether a request holds its connection open
// (SSE or WebSocket) and must not be cut by timeouts.
func IsStreamRequest(c echo.Context) bool {
	req := c.Request()
	return strings.HasSuffix(req.URL.Path, "/stream") ||
		strings.HasPrefix(req.URL.Path, "/api/ws/") ||
		req.Header.Get(echo.HeaderAccept) == "text/event-stream"
}
