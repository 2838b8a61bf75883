package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/studyhub/backend/internal/api"
	"github.com/studyhub/backend/internal/config"
	"github.com/studyhub/backend/internal/logging"
	"github.com/studyhub/backend/internal/metrics"
	"github.com/studyhub/backend/internal/upload"
	"go.uber.org/zap"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	configPath := filepath.Join(exeDir, config.FileName)
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Init(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	}); err != nil {
		fmt.Printf("Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()
	logger := logging.L()

	uploadMgr := upload.NewManager(
		upload.WithTiming(upload.Timing{
			TickInterval: cfg.TickInterval(),
			ProgressStep: cfg.Simulation.ProgressStep,
			ResolveDelay: cfg.ResolveDelay(),
		}),
		upload.WithResolver(upload.RandomResolver(cfg.Simulation.SuccessRate)),
		upload.WithRecorder(metrics.NewRecorder()),
		upload.WithLogger(logging.Named("upload")),
	)
	defer uploadMgr.Close()

	e := echo.New()
	e.HideBanner = true

	e.Use(logging.RequestLogger(logging.RequestLoggerConfig{
		Logger: logging.Named("http"),
		Skipper: func(c echo.Context) bool {
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return api.IsStreamRequest(c) ||
				path == "/api/health" ||
				path == "/metrics"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("panic recovered",
				zap.String("path", c.Request().URL.Path),
				zap.Error(err),
				zap.ByteString("stack", stack),
			)
			return err
		},
	}))

	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 1 && origins[0] == "" {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderXRequestID},
		}))
	}

	api.SetupMiddleware(e, api.MiddlewareConfig{
		ShowErrorDetails: cfg.Advanced.ShowErrorDetails,
		HandlerTimeout:   cfg.HandlerTimeout(),
	})

	handlers := api.NewHandlers(&api.Dependencies{
		Uploads:              uploadMgr,
		Version:              Version,
		WebSocketReadLimitKB: cfg.Advanced.WebSocketReadLimitKB,
		EnableMetrics:        cfg.Advanced.EnableMetrics,
	})
	api.RegisterRoutes(e, handlers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The server write timeout stays zero so SSE and WebSocket connections are
	// not cut; other routes are bounded by the handler timeout middleware.
	// Request contexts derive from ctx so open streams end on shutdown.
	s := &http.Server{
		Addr:        cfg.GetServerAddr(),
		ReadTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		IdleTimeout: time.Duration(cfg.Server.IdleTimeout) * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           StudyHub Upload Server                          ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Tick:      %-46s║\n", cfg.TickInterval())
	fmt.Printf("║  Resolve:   %-46s║\n", cfg.ResolveDelay())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}
