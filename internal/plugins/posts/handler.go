package posts

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/inkwell-cms/inkwell/internal/sanitize"
)

// Handler handles HTTP requests for post CRUD. Handlers are thin: bind
// request, call service, render response. No business logic lives here.
type Handler struct {
	service PostService
}

// NewHandler creates a new posts handler.
func NewHandler(service PostService) *Handler {
	return &Handler{service: service}
}

// Create creates a new draft post (POST /api/v1/posts).
func (h *Handler) Create(c echo.Context) error {
	var input CreatePostInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	post, err := h.service.CreatePost(c.Request().Context(), input)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, post)
}

// Get returns a single post by ID (GET /api/v1/posts/:id).
func (h *Handler) Get(c echo.Context) error {
	post, err := h.service.GetPost(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, post)
}

// Update applies content edits to a post (PUT /api/v1/posts/:id). Editing
// bumps the revision, which invalidates any outstanding preview tokens.
func (h *Handler) Update(c echo.Context) error {
	var input UpdatePostInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	post, err := h.service.UpdatePost(c.Request().Context(), c.Param("id"), input)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, post)
}

// GetBySlug serves the canonical public view of a published post
// (GET /posts/:slug). Stale preview links redirect here once the post goes
// live. Non-published posts are a 404 like any other missing page.
func (h *Handler) GetBySlug(c echo.Context) error {
	post, err := h.service.GetPublishedBySlug(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}

	post.Body = sanitize.HTML(post.Body)
	return c.JSON(http.StatusOK, post)
}

// List returns a page of posts (GET /api/v1/posts).
func (h *Handler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	list, err := h.service.ListPosts(c.Request().Context(), limit, offset)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, list)
}
