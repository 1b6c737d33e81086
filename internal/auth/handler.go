package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/quickfood/quickfood-backend/internal/platform/httpx"
	"github.com/quickfood/quickfood-backend/internal/shared"
	"github.com/quickfood/quickfood-backend/internal/token"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	cookies   Cookies
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, cookies Cookies) *Handler {
	return &Handler{logger: logger, service: service, cookies: cookies, validator: validator.New()}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/logout", h.handleLogout)
	r.Post("/auth/refresh", h.handleRefresh)
}

// MountAuthenticatedRoutes registers routes requiring an identity.
func (h *Handler) MountAuthenticatedRoutes(r chi.Router) {
	r.Get("/auth/me", h.handleMe)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type identitySummary struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "credentials not provided")
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	pair, err := h.service.MintPair(r.Context(), user)
	if err != nil {
		h.logger.Error("mint token pair", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	h.cookies.SetAccess(w, pair.AccessToken)
	h.cookies.SetRefresh(w, pair.RefreshToken)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"message": "login successful",
		"user": identitySummary{
			ID:    user.ID.String(),
			Email: user.Email,
			Role:  pair.Role,
		},
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.cookies.Clear(w)
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "logout successful"})
}

// handleRefresh mints a new access token from the refresh cookie. Unlike the
// login path, failures here may name the sub-reason: the caller already
// proved possession of some credential.
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(RefreshCookie)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "refresh token not found")
		return
	}
	user, _, err := h.service.ValidateToken(r.Context(), cookie.Value, token.KindRefresh)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	access, err := h.service.MintAccess(r.Context(), user)
	if err != nil {
		h.logger.Error("mint access token", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	h.cookies.SetAccess(w, access)
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "token refreshed"})
}

// handleMe returns the caller's identity with a freshly resolved role.
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	role, err := h.service.CurrentRole(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Warn("resolve current role", slog.Any("error", err))
		role = identity.Role
	}
	httpx.JSON(w, http.StatusOK, identitySummary{
		ID:    identity.UserID.String(),
		Email: identity.Email,
		Role:  role,
	})
}
