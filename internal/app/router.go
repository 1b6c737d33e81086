package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/quickfood/quickfood-backend/internal/auth"
	"github.com/quickfood/quickfood-backend/internal/observability"
	"github.com/quickfood/quickfood-backend/internal/rbac"
	"github.com/quickfood/quickfood-backend/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Authenticator  *auth.Authenticator
	AuthHandler    *auth.Handler
	UsersHandler   *users.Handler
	RBACHandler    *rbac.Handler
	RBACMiddleware rbac.Middleware
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with QuickFood defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:        params.Logger,
		Config:        params.Config,
		Authenticator: params.Authenticator,
		Metrics:       params.Metrics,
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

	// Anonymous surface: login, registration, manual refresh.
	params.AuthHandler.MountRoutes(r)
	params.UsersHandler.MountPublicRoutes(r)

	// Authenticated surface.
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireIdentity)
		params.AuthHandler.MountAuthenticatedRoutes(r)
		params.RBACHandler.MountSelfRoutes(r)
	})

	// Profile routes gated by the USER_PROFILE resource.
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireIdentity)
		r.Use(params.RBACMiddleware.Require(rbac.ResourceUserProfile))
		params.UsersHandler.MountProfileRoutes(r)
	})

	// Administrative surface.
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireIdentity)
		r.Use(params.RBACMiddleware.RequireRole(rbac.RoleSuperAdmin, rbac.RoleSystemStaff))
		params.RBACHandler.MountAdminRoutes(r)
		params.UsersHandler.MountAdminRoutes(r)
	})

	return r
}
