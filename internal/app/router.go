package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/sucursal-ops/sucursal-ops/internal/auth"
	"github.com/sucursal-ops/sucursal-ops/internal/authz"
	"github.com/sucursal-ops/sucursal-ops/internal/count"
	"github.com/sucursal-ops/sucursal-ops/internal/observability"
	"github.com/sucursal-ops/sucursal-ops/internal/shared"
	"github.com/sucursal-ops/sucursal-ops/internal/suggestion"
	"github.com/sucursal-ops/sucursal-ops/internal/task"
	"github.com/sucursal-ops/sucursal-ops/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	SessionManager    *shared.SessionManager
	CSRFManager       *shared.CSRFManager
	Authz             authz.Middleware
	AuthHandler       *auth.Handler
	TaskHandler       *task.Handler
	CountHandler      *count.Handler
	SuggestionHandler *suggestion.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router for the JSON API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", func(r chi.Router) {
		// Credential guessing gets a tighter budget than the rest of
		// the API.
		r.Use(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		params.AuthHandler.MountRoutes(r)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(params.Authz.RequireAuthenticated)
		r.Route("/tareas", params.TaskHandler.MountRoutes)
		r.Route("/control-stock", func(r chi.Router) {
			params.CountHandler.MountRoutes(r)
			params.SuggestionHandler.MountRoutes(r)
		})
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
