package server

import (
	"github.com/papertrail-ai/papertrail/backend/internal/server/middleware"
	"github.com/papertrail-ai/papertrail/backend/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Graph routes
	apiRoutes.GET("/graph/data", routes.GetGraphDataHandler)
	apiRoutes.POST("/graph/rebuild", routes.RebuildGraphHandler, middleware.RequirePermission("graph.rebuild"))
	apiRoutes.POST("/graph/rebuild/async", routes.RebuildGraphAsyncHandler, middleware.RequirePermission("graph.rebuild"))
	apiRoutes.GET("/graph/entities/:id/dossier", routes.GetEntityDossierHandler)
	apiRoutes.POST("/graph/subgraph", routes.GetSubgraphHandler)

	// Analysis routes
	apiRoutes.POST("/graph/analyze", routes.AnalyzeConflictsHandler, middleware.RequirePermission("graph.analyze"))
	apiRoutes.POST("/graph/patterns", routes.DetectPatternsHandler, middleware.RequirePermission("graph.analyze"))

	// Export routes
	apiRoutes.POST("/export/redact/:id", routes.RedactEntityHandler, middleware.RequirePermission("export.redact"))
	apiRoutes.GET("/export/clean-room", routes.CleanRoomExportHandler, middleware.RequirePermission("export.create"))
}
