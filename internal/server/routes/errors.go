package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/papertrail-ai/papertrail/backend/internal/server/middleware"
	"github.com/papertrail-ai/papertrail/backend/pkg/export"
	"github.com/papertrail-ai/papertrail/backend/pkg/graph"
	"github.com/papertrail-ai/papertrail/backend/pkg/logger"
	"github.com/papertrail-ai/papertrail/backend/pkg/query"
)

func jsonError(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

// handleError maps service errors onto HTTP responses.
func handleError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, query.ErrNotFound), errors.Is(err, export.ErrNotFound):
		return jsonError(c, http.StatusNotFound, "Entity not found")
	case errors.Is(err, graph.ErrEmptyOwner):
		return jsonError(c, http.StatusBadRequest, "Invalid owner")
	default:
		logger.Error("[Server] Request failed", "path", c.Path(), "err", err)
		return jsonError(c, http.StatusInternalServerError, "Internal server error")
	}
}

// bind decodes and validates the request into v.
func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return err
	}
	return c.Validate(v)
}

func appContext(c echo.Context) (*middleware.AppContext, string, bool) {
	cc := c.(*middleware.AppContext)
	owner := middleware.Owner(c)
	return cc, owner, owner != ""
}
