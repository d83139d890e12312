package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-books/internal/catalog"
	"github.com/odyssey-erp/odyssey-books/internal/documents"
	"github.com/odyssey-erp/odyssey-books/internal/observability"
	"github.com/odyssey-erp/odyssey-books/internal/rbac"
	"github.com/odyssey-erp/odyssey-books/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	RBACMiddleware   rbac.Middleware
	DocumentsHandler *documents.Handler
	CatalogHandler   *catalog.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
	// Ready reports backend reachability for /healthz. Nil means always ready.
	Ready func(ctx context.Context) error
}

// NewRouter constructs the chi.Router with Odyssey defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		RBAC:    params.RBACMiddleware,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if params.Config == nil || !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if params.Ready != nil {
			if err := params.Ready(r.Context()); err != nil {
				if params.Logger != nil {
					params.Logger.Warn("health check", slog.Any("error", err))
				}
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.DocumentsHandler != nil {
		params.DocumentsHandler.MountRoutes(r)
	}
	if params.CatalogHandler != nil {
		r.Route("/catalog", params.CatalogHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil && (params.Config == nil || params.Config.MetricsEnabled) {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
