package posts

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up post routes: the public canonical post page and
// the admin CRUD endpoints.
func RegisterRoutes(e *echo.Echo, api *echo.Group, h *Handler) {
	e.GET("/posts/:slug", h.GetBySlug)

	api.POST("/posts", h.Create)
	api.GET("/posts", h.List)
	api.GET("/posts/:id", h.Get)
	api.PUT("/posts/:id", h.Update)
}
