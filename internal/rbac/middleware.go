package rbac

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/quickfood/quickfood-backend/internal/platform/httpx"
	"github.com/quickfood/quickfood-backend/internal/shared"
)

// Middleware wires authorization guards for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Require gates a route on the caller holding any grant for the resource and
// the action derived from the request method. Anonymous requests get 401,
// authenticated requests without a grant get 403.
func (m Middleware) Require(resource ResourceType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := shared.IdentityFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			active, err := m.Service.ActiveRole(r.Context(), identity.UserID)
			if errors.Is(err, shared.ErrNoActiveRole) {
				httpx.RespondError(w, httpx.ErrForbidden)
				return
			}
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("resolve active role", slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			action := ActionForMethod(r.Method)
			granted, err := m.Service.HasPermission(r.Context(), active.RoleID, resource, action)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("permission check", slog.Any("error", err),
						slog.String("resource", string(resource)), slog.String("action", string(action)))
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if !granted {
				httpx.RespondError(w, httpx.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole gates a route on the caller's active role being one of the
// named roles. Used for administrative endpoints outside the resource model.
func (m Middleware) RequireRole(names ...RoleName) func(http.Handler) http.Handler {
	allowed := make(map[RoleName]struct{}, len(names))
	for _, n := range names {
		allowed[n] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := shared.IdentityFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			active, err := m.Service.ActiveRole(r.Context(), identity.UserID)
			if err != nil {
				if !errors.Is(err, shared.ErrNoActiveRole) && m.Logger != nil {
					m.Logger.Error("resolve active role", slog.Any("error", err))
				}
				httpx.RespondError(w, httpx.ErrForbidden)
				return
			}
			if _, ok := allowed[active.RoleName]; !ok {
				httpx.RespondError(w, httpx.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
