package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/papertrail-ai/papertrail/backend/internal/queue"
	"github.com/papertrail-ai/papertrail/backend/pkg/graph"
)

func GetGraphDataHandler(c echo.Context) error {
	cc, owner, ok := appContext(c)
	if !ok {
		return jsonError(c, http.StatusUnauthorized, "Unauthorized")
	}

	data, err := cc.App.Query.GetGraphData(c.Request().Context(), owner)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, data)
}

func RebuildGraphHandler(c echo.Context) error {
	type rebuildResponse struct {
		Status  string             `json:"status"`
		Message string             `json:"message"`
		Stats   graph.RebuildStats `json:"stats"`
	}

	cc, owner, ok := appContext(c)
	if !ok {
		return jsonError(c, http.StatusUnauthorized, "Unauthorized")
	}

	stats, err := cc.App.Graph.RebuildGraph(c.Request().Context(), owner)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, rebuildResponse{
		Status:  "success",
		Message: "Graph rebuilt successfully",
		Stats:   stats,
	})
}

func RebuildGraphAsyncHandler(c echo.Context) error {
	cc, owner, ok := appContext(c)
	if !ok {
		return jsonError(c, http.StatusUnauthorized, "Unauthorized")
	}
	if cc.App.Queue == nil {
		return jsonError(c, http.StatusServiceUnavailable, "Rebuild queue is not configured")
	}

	requestID, err := queue.PublishRebuild(c.Request().Context(), cc.App.Queue, owner)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"status":     "queued",
		"request_id": requestID,
	})
}

func GetEntityDossierHandler(c echo.Context) error {
	type dossierParams struct {
		ID string `param:"id" validate:"required"`
	}

	params := new(dossierParams)
	if err := bind(c, params); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid request params")
	}

	cc, owner, ok := appContext(c)
	if !ok {
		return jsonError(c, http.StatusUnauthorized, "Unauthorized")
	}

	dossier, err := cc.App.Query.GetEntityDossier(c.Request().Context(), owner, params.ID)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, dossier)
}

func GetSubgraphHandler(c echo.Context) error {
	type subgraphBody struct {
		NodeIDs []string `json:"node_ids" validate:"dive,required"`
		Limit   int      `json:"limit"`
	}

	body := new(subgraphBody)
	if err := bind(c, body); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid request body")
	}

	cc, owner, ok := appContext(c)
	if !ok {
		return jsonError(c, http.StatusUnauthorized, "Unauthorized")
	}

	sub, err := cc.App.Query.GetSubgraph(c.Request().Context(), owner, body.NodeIDs, body.Limit)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, sub)
}
