package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/reportbuilder/internal/config"
	"github.com/pitabwire/reportbuilder/internal/layout"
	"github.com/pitabwire/reportbuilder/internal/report"
	"github.com/pitabwire/reportbuilder/model"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config             *config.Config
	Logger             *zap.Logger
	Authenticate       func(http.Handler) http.Handler
	CapabilityResolver model.CapabilityResolver

	Service   *report.Service
	Catalog   CatalogReader
	Templates *layout.TemplateSet

	HealthHandler  http.Handler
	ReadyHandler   http.Handler
	MetricsHandler http.Handler
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	templates := deps.Templates
	if templates == nil {
		templates = layout.NewTemplateSet()
	}

	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes.
	r.Method(http.MethodGet, "/ui/health", orDefault(deps.HealthHandler, handleHealth))
	r.Method(http.MethodGet, "/ui/ready", orDefault(deps.ReadyHandler, handleReady))
	if deps.Config.Observability.Metrics.Enabled || deps.MetricsHandler != nil {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, orDefault(deps.MetricsHandler, handleMetrics))
	}

	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(BuildRequestContextMiddleware(deps.Config.Identity.ClaimPaths))
		r.Use(ResolveCapabilities(deps.CapabilityResolver, logger))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(MaxBody(deps.Config.Server.MaxBodyBytes))
		r.Use(RequestLogging(logger))

		if deps.Service != nil {
			svc := deps.Service
			r.With(RequireCapability(model.CapReportsView)).Get("/ui/reports", handleListReports(svc))
			r.With(RequireCapability(model.CapReportsDelete)).Delete("/ui/reports/{reportId}", handleDeleteReport(svc))

			r.With(RequireCapability(model.CapReportsEdit)).Post("/ui/sessions", handleOpenSession(svc))
			r.With(RequireCapability(model.CapReportsEdit)).Get("/ui/sessions/{sessionId}", handleGetSession(svc))
			r.With(RequireCapability(model.CapReportsEdit)).Post("/ui/sessions/{sessionId}/commands", handleSessionCommand(svc))
			r.With(RequireCapability(model.CapReportsSave)).Post("/ui/sessions/{sessionId}/save", handleSaveSession(svc))
			r.With(RequireCapability(model.CapReportsPreview)).Post("/ui/sessions/{sessionId}/preview", handlePreviewSession(svc))
			r.With(RequireCapability(model.CapReportsEdit)).Delete("/ui/sessions/{sessionId}", handleCloseSession(svc))
		}

		if deps.Catalog != nil {
			r.With(RequireCapability(model.CapCatalogView)).Get("/ui/catalog/sources", handleListDataSources(deps.Catalog))
			r.With(RequireCapability(model.CapCatalogView)).Get("/ui/catalog/sources/{dataSourceId}", handleGetDataSource(deps.Catalog))
		}
		r.With(RequireCapability(model.CapCatalogView)).Get("/ui/catalog/operators/{dataType}", handleListOperators())
		r.With(RequireCapability(model.CapReportsEdit)).Get("/ui/layout/templates", handleListTemplates(templates))
	})

	return r
}

func orDefault(h http.Handler, def http.HandlerFunc) http.Handler {
	if h != nil {
		return h
	}
	return def
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
}
