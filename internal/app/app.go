// Package app is the application bootstrap and dependency injection root.
// It creates and holds all shared infrastructure (DB pool, Redis client,
// Echo instance) and wires together all plugins.
package app

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/inkwell-cms/inkwell/internal/apperror"
	"github.com/inkwell-cms/inkwell/internal/clock"
	"github.com/inkwell-cms/inkwell/internal/config"
	"github.com/inkwell-cms/inkwell/internal/middleware"
	"github.com/inkwell-cms/inkwell/internal/plugins/activity"
	"github.com/inkwell-cms/inkwell/internal/plugins/posts"
	"github.com/inkwell-cms/inkwell/internal/plugins/preview"
	"github.com/inkwell-cms/inkwell/internal/plugins/workflow"
	"github.com/inkwell-cms/inkwell/internal/scheduler"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the MariaDB connection pool shared by all plugins.
	DB *sql.DB

	// Redis is the Redis client shared by the token store and the
	// publish queue.
	Redis *redis.Client

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	// Queue is the delayed publish task queue.
	Queue *scheduler.Queue

	// Workflow drives the publishing state machine. Exposed so main.go
	// can hand PublishDue and ProcessScheduled to the queue runner.
	Workflow workflow.WorkflowService

	// Preview issues and validates preview credentials.
	Preview preview.PreviewService

	handler handlers
}

// handlers groups the per-plugin HTTP handlers built during wiring.
type handlers struct {
	posts    *posts.Handler
	workflow *workflow.Handler
	preview  *preview.Handler
}

// New creates a new App instance with the given dependencies, wires all
// plugin services together, and configures the Echo server with global
// middleware and error handling.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client) (*App, error) {
	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	// Configure trusted reverse proxy IPs so c.RealIP() returns the actual
	// client IP instead of the proxy's. Rate limiting and the preview
	// access trail both key on it.
	middleware.TrustedProxies(e, []string{
		"127.0.0.0/8",    // Localhost
		"10.0.0.0/8",     // Docker default bridge
		"172.16.0.0/12",  // Docker bridge (alternate range)
		"192.168.0.0/16", // Common LAN
		"fd00::/8",       // IPv6 private
	})

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Echo:   e,
	}

	if err := app.wirePlugins(); err != nil {
		return nil, err
	}

	// Register global middleware in order of execution.
	app.setupMiddleware()

	// Register the custom error handler that maps AppErrors to HTTP responses.
	e.HTTPErrorHandler = app.errorHandler

	return app, nil
}

// wirePlugins builds the service graph: repositories over the DB pool,
// Redis-backed stores, then services and handlers.
func (a *App) wirePlugins() error {
	clk := clock.System{}

	postRepo := posts.NewPostRepository(a.DB)
	activityRepo := activity.NewActivityRepository(a.DB)

	activitySvc := activity.NewActivityService(activityRepo)
	postSvc := posts.NewPostService(postRepo, clk)

	a.Queue = scheduler.NewQueue(a.Redis, clk)

	store := workflow.NewStore(a.DB, postRepo, activityRepo)
	a.Workflow = workflow.NewWorkflowService(store, a.Queue, clk, activitySvc)

	tokenStore := preview.NewRedisTokenStore(a.Redis)
	previewSvc, err := preview.NewPreviewService(
		tokenStore,
		postRepo,
		activitySvc,
		clk,
		a.Config.Preview.SecretKey,
		a.Config.BaseURL,
		a.Config.Preview.TokenTTL,
	)
	if err != nil {
		return fmt.Errorf("building preview service: %w", err)
	}
	a.Preview = previewSvc

	a.handler = handlers{
		posts:    posts.NewHandler(postSvc),
		workflow: workflow.NewHandler(a.Workflow),
		preview:  preview.NewHandler(previewSvc, postSvc),
	}

	return nil
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: outermost (recovery) runs first.
func (a *App) setupMiddleware() {
	// Panic recovery -- must be outermost to catch panics from all other middleware.
	a.Echo.Use(middleware.Recovery())

	// Request logging -- log every request with method, path, status, latency.
	a.Echo.Use(middleware.RequestLogger())

	// Security headers -- CSP, X-Frame-Options, X-Content-Type-Options, etc.
	a.Echo.Use(middleware.SecurityHeaders())
}

// errorHandler is the custom Echo error handler. It maps domain errors
// (AppError) to JSON HTTP responses. All surfaces are JSON; there is no
// HTML error page to render.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	errType := "internal_error"
	message := "An unexpected error occurred"

	// Check if it's our domain error type.
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
		errType = appErr.Type
		message = appErr.Message

		// Log internal errors with the underlying cause.
		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}
	} else {
		// Check for Echo's built-in HTTP errors (e.g., 404 from router).
		var echoErr *echo.HTTPError
		if errors.As(err, &echoErr) {
			code = echoErr.Code
			errType = http.StatusText(code)
			if msg, ok := echoErr.Message.(string); ok {
				message = msg
			} else {
				message = http.StatusText(code)
			}
		} else {
			// Truly unexpected error -- log it.
			slog.Error("unhandled error",
				slog.Any("error", err),
				slog.String("path", c.Request().URL.Path),
			)
		}
	}

	c.JSON(code, map[string]string{
		"error":   errType,
		"message": message,
	})
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting Inkwell server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
	)
	return a.Echo.Start(addr)
}
