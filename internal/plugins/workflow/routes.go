package workflow

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up workflow routes. Transition endpoints live on the
// admin API group; the scheduled-sweep endpoint lives on the internal group
// so deployments can fence it off from the public API.
func RegisterRoutes(api, internal *echo.Group, h *Handler) {
	// Bulk routes are registered before the :id routes so Echo does not
	// treat "bulk" as a post ID.
	api.POST("/posts/bulk/publish", h.BulkPublish)
	api.POST("/posts/bulk/schedule", h.BulkSchedule)

	api.POST("/posts/:id/draft", h.SaveDraft)
	api.POST("/posts/:id/publish", h.Publish)
	api.POST("/posts/:id/schedule", h.Schedule)
	api.POST("/posts/:id/reschedule", h.Reschedule)
	api.POST("/posts/:id/unpublish", h.Unpublish)
	api.POST("/posts/:id/archive", h.Archive)
	api.GET("/posts/:id/history", h.History)

	internal.POST("/process-scheduled", h.ProcessScheduled)
}
