package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/quickfood/quickfood-backend/internal/platform/httpx"
	"github.com/quickfood/quickfood-backend/internal/shared"
)

// Handler wires HTTP endpoints for role and permission management.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountSelfRoutes registers routes describing the caller's own grants.
func (h *Handler) MountSelfRoutes(r chi.Router) {
	r.Get("/me/permissions", h.handleMyPermissions)
	r.Get("/me/role", h.handleMyRole)
}

// MountAdminRoutes registers the role management surface.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Get("/roles", h.handleListRoles)
	r.Post("/roles/assign", h.handleAssignRole)
	r.Get("/users/{id}/roles", h.handleRoleHistory)
}

type roleResponse struct {
	ID          string   `json:"id"`
	Name        RoleName `json:"name"`
	Type        RoleType `json:"role_type"`
	Description string   `json:"description,omitempty"`
	IsActive    bool     `json:"is_active"`
}

type userRoleResponse struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	RoleID     string     `json:"role_id"`
	RoleName   RoleName   `json:"role_name"`
	IsActive   bool       `json:"is_active"`
	AssignedAt time.Time  `json:"assigned_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

func toUserRoleResponse(ur UserRole) userRoleResponse {
	return userRoleResponse{
		ID:         ur.ID.String(),
		UserID:     ur.UserID.String(),
		RoleID:     ur.RoleID.String(),
		RoleName:   ur.RoleName,
		IsActive:   ur.IsActive,
		AssignedAt: ur.AssignedAt,
		ExpiresAt:  ur.ExpiresAt,
	}
}

func (h *Handler) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, roleResponse{
			ID:          role.ID.String(),
			Name:        role.Name,
			Type:        role.Type,
			Description: role.Description,
			IsActive:    role.IsActive,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

type assignRoleRequest struct {
	UserID    string     `json:"user_id" validate:"required,uuid4"`
	RoleID    string     `json:"role_id" validate:"required,uuid4"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (h *Handler) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	userID, _ := uuid.Parse(req.UserID)
	roleID, _ := uuid.Parse(req.RoleID)

	assigned, err := h.service.AssignRole(r.Context(), userID, roleID, req.ExpiresAt)
	if err != nil {
		h.logger.Warn("assign role", slog.Any("error", err),
			slog.String("user_id", req.UserID), slog.String("role_id", req.RoleID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toUserRoleResponse(assigned))
}

func (h *Handler) handleRoleHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid user id")
		return
	}
	history, err := h.service.RoleHistory(r.Context(), userID)
	if err != nil {
		h.logger.Error("role history", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	out := make([]userRoleResponse, 0, len(history))
	for _, ur := range history {
		out = append(out, toUserRoleResponse(ur))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleMyPermissions(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	perms, err := h.service.PermissionsForUser(r.Context(), identity.UserID)
	if errors.Is(err, shared.ErrNoActiveRole) {
		httpx.JSON(w, http.StatusOK, []ResolvedPermission{})
		return
	}
	if err != nil {
		h.logger.Error("resolve permissions", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) handleMyRole(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	active, err := h.service.ActiveRole(r.Context(), identity.UserID)
	if errors.Is(err, shared.ErrNoActiveRole) {
		httpx.JSON(w, http.StatusOK, map[string]any{"role": nil})
		return
	}
	if err != nil {
		h.logger.Error("active role", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, toUserRoleResponse(active))
}
