package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickfood/quickfood-backend/internal/shared"
)

func guardedRequest(method string, identity *shared.Identity) *http.Request {
	req := httptest.NewRequest(method, "/guarded", nil)
	if identity != nil {
		req = req.WithContext(shared.ContextWithIdentity(req.Context(), *identity))
	}
	return req
}

func serveGuard(guard func(http.Handler) http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)
	return rec
}

func TestRequireAnonymousGets401(t *testing.T) {
	mw := Middleware{Service: NewService(newMockRepository(), nil, nil)}
	rec := serveGuard(mw.Require(ResourceOrders), guardedRequest(http.MethodGet, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireWithoutActiveRoleGets403(t *testing.T) {
	mw := Middleware{Service: NewService(newMockRepository(), nil, nil)}
	identity := &shared.Identity{UserID: uuid.New(), Email: "alice@example.com"}
	rec := serveGuard(mw.Require(ResourceOrders), guardedRequest(http.MethodGet, identity))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireEnforcesMethodAction(t *testing.T) {
	repo := newMockRepository()
	role := repo.addRole(RoleCustomer, RoleTypePlatform, true)
	repo.grant(role.ID, ResourceOrders, ActionRead, AccessReadOnly)
	repo.grant(role.ID, ResourceOrders, ActionCreate, AccessFull)
	svc := NewService(repo, nil, nil)
	mw := Middleware{Service: svc}

	userID := uuid.New()
	_, err := svc.AssignRole(context.Background(), userID, role.ID, nil)
	require.NoError(t, err)
	identity := &shared.Identity{UserID: userID, Email: "alice@example.com"}

	guard := mw.Require(ResourceOrders)
	assert.Equal(t, http.StatusOK, serveGuard(guard, guardedRequest(http.MethodGet, identity)).Code)
	assert.Equal(t, http.StatusOK, serveGuard(guard, guardedRequest(http.MethodPost, identity)).Code)
	assert.Equal(t, http.StatusForbidden, serveGuard(guard, guardedRequest(http.MethodDelete, identity)).Code,
		"no DELETE grant on the resource")
}

func TestRequireRole(t *testing.T) {
	repo := newMockRepository()
	admin := repo.addRole(RoleSuperAdmin, RoleTypeSystem, true)
	customer := repo.addRole(RoleCustomer, RoleTypePlatform, true)
	svc := NewService(repo, nil, nil)
	mw := Middleware{Service: svc}

	adminUser := uuid.New()
	customerUser := uuid.New()
	_, err := svc.AssignRole(context.Background(), adminUser, admin.ID, nil)
	require.NoError(t, err)
	_, err = svc.AssignRole(context.Background(), customerUser, customer.ID, nil)
	require.NoError(t, err)

	guard := mw.RequireRole(RoleSuperAdmin, RoleSystemStaff)

	rec := serveGuard(guard, guardedRequest(http.MethodGet, &shared.Identity{UserID: adminUser}))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serveGuard(guard, guardedRequest(http.MethodGet, &shared.Identity{UserID: customerUser}))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serveGuard(guard, guardedRequest(http.MethodGet, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
