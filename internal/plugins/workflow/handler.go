package workflow

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/inkwell-cms/inkwell/internal/middleware"
)

// Handler handles HTTP requests for publishing workflow operations.
// Handlers are thin: bind request, call service, render response.
type Handler struct {
	service WorkflowService
}

// NewHandler creates a new workflow handler.
func NewHandler(service WorkflowService) *Handler {
	return &Handler{service: service}
}

// scheduleRequest carries a publish time for schedule and reschedule calls.
type scheduleRequest struct {
	PublishAt time.Time `json:"publish_at"`
}

// bulkRequest carries the target IDs for bulk operations.
type bulkRequest struct {
	IDs       []string  `json:"ids"`
	PublishAt time.Time `json:"publish_at,omitempty"`
}

// SaveDraft forces a post back to draft (POST /api/v1/posts/:id/draft).
func (h *Handler) SaveDraft(c echo.Context) error {
	post, err := h.service.SaveDraft(c.Request().Context(), c.Param("id"), middleware.ActorID(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, post)
}

// Publish publishes a post immediately (POST /api/v1/posts/:id/publish).
// Publishing an already-published post succeeds without changing anything.
func (h *Handler) Publish(c echo.Context) error {
	post, err := h.service.PublishNow(c.Request().Context(), c.Param("id"), middleware.ActorID(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, post)
}

// Schedule sets a future publish time (POST /api/v1/posts/:id/schedule).
func (h *Handler) Schedule(c echo.Context) error {
	var req scheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	post, err := h.service.Schedule(c.Request().Context(), c.Param("id"), req.PublishAt, middleware.ActorID(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, post)
}

// Reschedule moves a scheduled post's publish time
// (POST /api/v1/posts/:id/reschedule).
func (h *Handler) Reschedule(c echo.Context) error {
	var req scheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	post, err := h.service.Reschedule(c.Request().Context(), c.Param("id"), req.PublishAt, middleware.ActorID(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, post)
}

// Unpublish pulls a published post back to draft
// (POST /api/v1/posts/:id/unpublish).
func (h *Handler) Unpublish(c echo.Context) error {
	post, err := h.service.Unpublish(c.Request().Context(), c.Param("id"), middleware.ActorID(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, post)
}

// Archive retires a post (POST /api/v1/posts/:id/archive).
func (h *Handler) Archive(c echo.Context) error {
	post, err := h.service.Archive(c.Request().Context(), c.Param("id"), middleware.ActorID(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, post)
}

// BulkPublish publishes a batch of posts (POST /api/v1/posts/bulk/publish).
func (h *Handler) BulkPublish(c echo.Context) error {
	var req bulkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.IDs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "ids is required")
	}

	result, err := h.service.BulkPublish(c.Request().Context(), req.IDs, middleware.ActorID(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// BulkSchedule schedules a batch of posts (POST /api/v1/posts/bulk/schedule).
func (h *Handler) BulkSchedule(c echo.Context) error {
	var req bulkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.IDs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "ids is required")
	}

	result, err := h.service.BulkSchedule(c.Request().Context(), req.IDs, req.PublishAt, middleware.ActorID(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// History returns the post's publishing timeline
// (GET /api/v1/posts/:id/history).
func (h *Handler) History(c echo.Context) error {
	entries, err := h.service.History(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entries)
}

// ProcessScheduled sweeps all due scheduled posts
// (POST /internal/process-scheduled). Exposed for cron-style invocation;
// the in-process runner calls the service directly.
func (h *Handler) ProcessScheduled(c echo.Context) error {
	count, err := h.service.ProcessScheduled(c.Request().Context())
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]int{"processed": count})
}
