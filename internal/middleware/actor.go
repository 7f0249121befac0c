package middleware

import (
	"github.com/labstack/echo/v4"
)

// ActorID extracts the acting user from the X-Actor-ID request header.
// Returns nil for anonymous requests so audit entries can record the
// absence of an actor rather than an empty string.
func ActorID(c echo.Context) *string {
	id := c.Request().Header.Get("X-Actor-ID")
	if id == "" {
		return nil
	}
	return &id
}
