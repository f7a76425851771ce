package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/marsukat/marsukat-dashboard/internal/auth"
	dashboardhttp "github.com/marsukat/marsukat-dashboard/internal/dashboard/http"
	"github.com/marsukat/marsukat-dashboard/internal/observability"
	"github.com/marsukat/marsukat-dashboard/internal/platform/httpx"
	"github.com/marsukat/marsukat-dashboard/jobs"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Auth             *auth.Service
	DashboardHandler *dashboardhttp.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
	Readiness        map[string]Pinger
}

// NewRouter constructs the chi.Router with dashboard defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readinessHandler(params.Readiness))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(params.Auth, params.Logger))
		if params.DashboardHandler != nil {
			r.Route("/api/dashboard", params.DashboardHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}

func readinessHandler(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		checks := make(map[string]string, len(deps))
		status := http.StatusOK
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				checks[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}
		httpx.JSON(w, status, map[string]any{"checks": checks})
	}
}
