package middleware

import (
	"github.com/MicahParks/keyfunc/v3"
	"github.com/labstack/echo/v4"

	"github.com/papertrail-ai/papertrail/backend/internal/queue"
	"github.com/papertrail-ai/papertrail/backend/internal/storage"
	"github.com/papertrail-ai/papertrail/backend/pkg/analysis"
	"github.com/papertrail-ai/papertrail/backend/pkg/export"
	"github.com/papertrail-ai/papertrail/backend/pkg/graph"
	"github.com/papertrail-ai/papertrail/backend/pkg/query"
)

// AppUser is the authenticated caller. UserID doubles as the graph owner.
type AppUser struct {
	UserID      string
	Role        string
	Permissions []string
}

// App carries the services shared by every request. Analyzer, Exports and
// Queue are nil when their backing service is not configured.
type App struct {
	Graph    *graph.GraphClient
	Query    *query.Service
	Analyzer *analysis.Analyzer
	Export   *export.Service
	Exports  *storage.ExportStore
	Queue    queue.Publisher

	Key            keyfunc.Keyfunc
	MasterAPIKey   string
	MasterUserID   string
	MasterUserRole string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
