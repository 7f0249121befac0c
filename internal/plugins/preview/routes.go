package preview

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/inkwell-cms/inkwell/internal/middleware"
)

// RegisterRoutes sets up preview routes. Public render endpoints are rate
// limited and marked noindex; token management lives on the admin API group.
func RegisterRoutes(e *echo.Echo, api, internal *echo.Group, h *Handler) {
	pub := e.Group("/preview",
		middleware.NoIndex(),
		middleware.RateLimit(60, time.Minute),
	)
	pub.GET("/shared/:blob", h.RenderShared)
	pub.GET("/:postID/:token", h.Render)

	api.POST("/posts/:id/preview-token", h.IssueToken)
	api.POST("/posts/:id/preview-link", h.IssueLink)
	api.DELETE("/posts/:id/preview-tokens/:token", h.Revoke)
	api.DELETE("/posts/:id/preview-tokens", h.RevokeAll)
	api.GET("/posts/:id/preview-stats", h.Stats)

	internal.POST("/cleanup-preview-tokens", h.Cleanup)
}
