package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func AnalyzeConflictsHandler(c echo.Context) error {
	type analyzeBody struct {
		NodeIDs []string `json:"node_ids" validate:"dive,required"`
	}

	body := new(analyzeBody)
	if err := bind(c, body); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid request body")
	}

	cc, owner, ok := appContext(c)
	if !ok {
		return jsonError(c, http.StatusUnauthorized, "Unauthorized")
	}
	if cc.App.Analyzer == nil {
		return jsonError(c, http.StatusServiceUnavailable, "Analysis is not configured")
	}

	report, err := cc.App.Analyzer.AnalyzeConflicts(c.Request().Context(), owner, body.NodeIDs)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

func DetectPatternsHandler(c echo.Context) error {
	type patternsBody struct {
		PatternID string `json:"pattern_id"`
	}

	body := new(patternsBody)
	if err := bind(c, body); err != nil {
		return jsonError(c, http.StatusBadRequest, "Invalid request body")
	}

	cc, owner, ok := appContext(c)
	if !ok {
		return jsonError(c, http.StatusUnauthorized, "Unauthorized")
	}
	if cc.App.Analyzer == nil {
		return jsonError(c, http.StatusServiceUnavailable, "Analysis is not configured")
	}

	report, err := cc.App.Analyzer.DetectPatterns(c.Request().Context(), owner, body.PatternID)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}
