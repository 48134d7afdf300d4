package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-hq/meridian-access/internal/audit"
	"github.com/meridian-hq/meridian-access/internal/auth"
	"github.com/meridian-hq/meridian-access/internal/observability"
	"github.com/meridian-hq/meridian-access/internal/permission"
	"github.com/meridian-hq/meridian-access/internal/roles"
	"github.com/meridian-hq/meridian-access/internal/users"
	"github.com/meridian-hq/meridian-access/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	AuthMiddleware    auth.Middleware
	RequirePermission permission.Middleware
	AuthHandler       *auth.Handler
	PermissionHandler *permission.Handler
	RolesHandler      *roles.Handler
	UsersHandler      *users.Handler
	AuditHandler      *audit.Handler
	JobsHandler       *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with Meridian defaults.
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
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(params.AuthMiddleware.Authenticate)

		r.Route("/rbac", func(r chi.Router) {
			params.PermissionHandler.MountDecisionRoutes(r)
			r.Group(func(r chi.Router) {
				r.Use(params.RequirePermission.Require("rbac.manage.global"))
				params.PermissionHandler.MountAdminRoutes(r)
			})
		})
		if params.RolesHandler != nil {
			r.Route("/roles", func(r chi.Router) {
				r.Use(params.RequirePermission.Require("roles.manage.global"))
				params.RolesHandler.MountRoutes(r)
			})
		}
		if params.UsersHandler != nil {
			r.Route("/users", func(r chi.Router) {
				r.Use(params.RequirePermission.Require("users.read.tenant"))
				params.UsersHandler.MountRoutes(r)
			})
		}
		if params.AuditHandler != nil {
			r.Route("/audit", func(r chi.Router) {
				r.Use(params.RequirePermission.Require("audit.read.tenant"))
				params.AuditHandler.MountRoutes(r)
			})
		}
		if params.JobsHandler != nil {
			r.Route("/jobs", params.JobsHandler.MountRoutes)
		}
		if params.AuthHandler != nil {
			r.Route("/tokens", func(r chi.Router) {
				r.Use(params.RequirePermission.Require("tokens.manage.global"))
				params.AuthHandler.MountRoutes(r)
			})
		}
	})

	return r
}
