package preview

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/inkwell-cms/inkwell/internal/middleware"
	"github.com/inkwell-cms/inkwell/internal/plugins/posts"
)

// Handler handles HTTP requests for preview access and token management.
// The public endpoints deliberately respond with only 200, 302, or 404 so
// nothing about token validity or post existence leaks to a probing caller.
type Handler struct {
	service PreviewService
	posts   posts.PostService
}

// NewHandler creates a new preview handler.
func NewHandler(service PreviewService, postSvc posts.PostService) *Handler {
	return &Handler{service: service, posts: postSvc}
}

// Render serves a token-authorized preview (GET /preview/:postID/:token).
func (h *Handler) Render(c echo.Context) error {
	result, err := h.service.RenderPreview(
		c.Request().Context(),
		c.Param("postID"),
		c.Param("token"),
		middleware.ActorID(c),
		c.RealIP(),
	)
	if err != nil {
		return err
	}

	return h.respond(c, result)
}

// RenderShared serves a shareable-link preview (GET /preview/shared/:blob).
func (h *Handler) RenderShared(c echo.Context) error {
	result, err := h.service.RenderShared(
		c.Request().Context(),
		c.Param("blob"),
		middleware.ActorID(c),
		c.RealIP(),
	)
	if err != nil {
		return err
	}

	return h.respond(c, result)
}

func (h *Handler) respond(c echo.Context, result *RenderResult) error {
	switch result.Kind {
	case ResultRender:
		return c.JSON(http.StatusOK, result.Post)
	case ResultRedirect:
		return c.Redirect(http.StatusFound, result.RedirectURL)
	default:
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	}
}

// tokenResponse is the admin-facing issue result.
type tokenResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// linkRequest carries the expiry for a shareable link.
type linkRequest struct {
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueToken creates a preview token for a post
// (POST /api/v1/posts/:id/preview-token).
func (h *Handler) IssueToken(c echo.Context) error {
	ctx := c.Request().Context()

	post, err := h.posts.GetPost(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	token, err := h.service.GenerateToken(ctx, post)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, tokenResponse{
		Token: token,
		URL:   h.service.TokenURL(post.ID, token),
	})
}

// IssueLink creates a self-contained shareable preview link
// (POST /api/v1/posts/:id/preview-link).
func (h *Handler) IssueLink(c echo.Context) error {
	var req linkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ExpiresAt.IsZero() {
		return echo.NewHTTPError(http.StatusBadRequest, "expires_at is required")
	}

	ctx := c.Request().Context()
	post, err := h.posts.GetPost(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	url, err := h.service.GenerateShareableLink(ctx, post, req.ExpiresAt)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, map[string]string{"url": url})
}

// Revoke deletes a single preview token
// (DELETE /api/v1/posts/:id/preview-tokens/:token).
func (h *Handler) Revoke(c echo.Context) error {
	deleted, err := h.service.RevokeToken(c.Request().Context(), c.Param("id"), c.Param("token"))
	if err != nil {
		return err
	}
	if !deleted {
		return echo.NewHTTPError(http.StatusNotFound, "token not found")
	}

	return c.NoContent(http.StatusNoContent)
}

// RevokeAll deletes every preview token for a post
// (DELETE /api/v1/posts/:id/preview-tokens).
func (h *Handler) RevokeAll(c echo.Context) error {
	if _, err := h.service.RevokeAll(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// Cleanup removes stored tokens whose expiry has passed
// (POST /internal/cleanup-preview-tokens). Redis TTLs normally handle this;
// the endpoint exists for cron-style hygiene and operational visibility.
func (h *Handler) Cleanup(c echo.Context) error {
	removed, err := h.service.CleanupExpired(c.Request().Context())
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]int{"removed": removed})
}

// Stats returns preview access aggregates for a post
// (GET /api/v1/posts/:id/preview-stats).
func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.service.Stats(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, stats)
}
