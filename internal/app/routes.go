package app

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/inkwell-cms/inkwell/internal/plugins/posts"
	"github.com/inkwell-cms/inkwell/internal/plugins/preview"
	"github.com/inkwell-cms/inkwell/internal/plugins/workflow"
)

// RegisterRoutes sets up all application routes. It registers public routes
// directly and delegates to each plugin's route registration function.
//
// This is the single place where all routes are aggregated. When a new
// plugin is added, its routes are registered here.
func (a *App) RegisterRoutes() {
	e := a.Echo

	// Health check endpoint for container health monitoring.
	e.GET("/healthz", a.healthz)

	// Admin API. The actor identity arrives in the X-Actor-ID header from
	// the authenticating frontend; this service treats it as opaque.
	api := e.Group("/api/v1")

	// Internal operations group for cron-style triggers. Deployments fence
	// this path off at the proxy.
	internal := e.Group("/internal")

	posts.RegisterRoutes(e, api, a.handler.posts)
	workflow.RegisterRoutes(api, internal, a.handler.workflow)
	preview.RegisterRoutes(e, api, internal, a.handler.preview)
}

// healthz verifies DB and Redis connectivity.
func (a *App) healthz(c echo.Context) error {
	ctx := c.Request().Context()

	if err := a.DB.PingContext(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "database unavailable"})
	}
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "redis unavailable"})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
