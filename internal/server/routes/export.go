package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/papertrail-ai/papertrail/backend/pkg/logger"
)

const cleanRoomFilename = "clean_room_export.zip"

func RedactEntityHandler(c echo.Context) error {
	type redactParams struct {
		ID string `param:"id" validate:"required"`
	}

	params := new(redactParams)
	if err := bind(c, params); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid request params")
	}

	cc, owner, ok := appContext(c)
	if !ok {
		return jsonError(c, http.StatusUnauthorized, "Unauthorized")
	}

	if err := cc.App.Export.RedactEntity(c.Request().Context(), owner, params.ID); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Entity redacted",
	})
}

// CleanRoomExportHandler uploads the archive and returns a download link
// when object storage is configured, otherwise it streams the archive.
func CleanRoomExportHandler(c echo.Context) error {
	cc, owner, ok := appContext(c)
	if !ok {
		return jsonError(c, http.StatusUnauthorized, "Unauthorized")
	}

	ctx := c.Request().Context()
	archive, err := cc.App.Export.CleanRoom(ctx, owner)
	if err != nil {
		return handleError(c, err)
	}

	if cc.App.Exports == nil {
		c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename="+cleanRoomFilename)
		return c.Blob(http.StatusOK, "application/zip", archive)
	}

	key, err := cc.App.Exports.PutExport(ctx, owner, archive)
	if err != nil {
		return handleError(c, err)
	}
	link, err := cc.App.Exports.DownloadLink(ctx, key)
	if err != nil {
		return handleError(c, err)
	}
	logger.Info("[Export] Uploaded clean room export", "owner", owner, "key", key)

	return c.JSON(http.StatusOK, map[string]string{
		"status": "success",
		"key":    key,
		"url":    link,
	})
}
