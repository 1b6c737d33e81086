package rbac

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickfood/quickfood-backend/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	roles       map[uuid.UUID]Role
	rolesByName map[RoleName]Role
	assignments map[uuid.UUID][]UserRole
	grants      map[uuid.UUID]map[string]AccessLevel

	accessForCalls int
	expiredSwept   int64

	// Errors returned by successive AssignUserRole calls before it succeeds.
	assignErrors []error
	assignCalls  int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		roles:       make(map[uuid.UUID]Role),
		rolesByName: make(map[RoleName]Role),
		assignments: make(map[uuid.UUID][]UserRole),
		grants:      make(map[uuid.UUID]map[string]AccessLevel),
	}
}

func (m *mockRepository) addRole(name RoleName, roleType RoleType, active bool) Role {
	role := Role{ID: uuid.New(), Name: name, Type: roleType, IsActive: active, CreatedAt: time.Now()}
	m.roles[role.ID] = role
	m.rolesByName[name] = role
	return role
}

func (m *mockRepository) grant(roleID uuid.UUID, resource ResourceType, action Action, level AccessLevel) {
	if m.grants[roleID] == nil {
		m.grants[roleID] = make(map[string]AccessLevel)
	}
	m.grants[roleID][string(resource)+"/"+string(action)] = level
}

func (m *mockRepository) ListRoles(context.Context) ([]Role, error) {
	var out []Role
	for _, r := range m.roles {
		out = append(out, r)
	}
	return out, nil
}

func (m *mockRepository) GetRole(_ context.Context, id uuid.UUID) (Role, error) {
	r, ok := m.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return r, nil
}

func (m *mockRepository) GetRoleByName(_ context.Context, name RoleName) (Role, error) {
	r, ok := m.rolesByName[name]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return r, nil
}

func (m *mockRepository) ActiveUserRole(_ context.Context, userID uuid.UUID) (UserRole, error) {
	now := time.Now()
	for _, ur := range m.assignments[userID] {
		if ur.IsActive && !ur.Expired(now) {
			return ur, nil
		}
	}
	return UserRole{}, shared.ErrNoActiveRole
}

func (m *mockRepository) UserRoleHistory(_ context.Context, userID uuid.UUID) ([]UserRole, error) {
	return m.assignments[userID], nil
}

func (m *mockRepository) AssignUserRole(_ context.Context, userID, roleID uuid.UUID, expiresAt *time.Time) (UserRole, error) {
	m.assignCalls++
	if len(m.assignErrors) > 0 {
		err := m.assignErrors[0]
		m.assignErrors = m.assignErrors[1:]
		return UserRole{}, err
	}
	rows := m.assignments[userID]
	for i := range rows {
		rows[i].IsActive = false
	}
	assigned := UserRole{
		ID:         uuid.New(),
		UserID:     userID,
		RoleID:     roleID,
		RoleName:   m.roles[roleID].Name,
		IsActive:   true,
		AssignedAt: time.Now(),
		ExpiresAt:  expiresAt,
	}
	m.assignments[userID] = append(rows, assigned)
	return assigned, nil
}

func (m *mockRepository) AccessFor(_ context.Context, roleID uuid.UUID, resource ResourceType, action Action) (AccessLevel, error) {
	m.accessForCalls++
	level, ok := m.grants[roleID][string(resource)+"/"+string(action)]
	if !ok {
		return AccessNone, nil
	}
	return level, nil
}

func (m *mockRepository) PermissionsForRole(_ context.Context, roleID uuid.UUID) ([]ResolvedPermission, error) {
	var out []ResolvedPermission
	for key, level := range m.grants[roleID] {
		var p ResolvedPermission
		for i, r := range key {
			if r == '/' {
				p.Resource = ResourceType(key[:i])
				p.Action = Action(key[i+1:])
				break
			}
		}
		p.Access = level
		out = append(out, p)
	}
	return out, nil
}

func (m *mockRepository) DeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for userID, rows := range m.assignments {
		for i := range rows {
			if rows[i].IsActive && rows[i].Expired(now) {
				rows[i].IsActive = false
				n++
			}
		}
		m.assignments[userID] = rows
	}
	m.expiredSwept += n
	return n, nil
}

var _ Repository = (*mockRepository)(nil)

type ownedThing struct{ owner uuid.UUID }

func (o ownedThing) OwnerID() uuid.UUID { return o.owner }

// ============================================================================
// ROLE ASSIGNMENT
// ============================================================================

func TestAssignRoleSingleActive(t *testing.T) {
	repo := newMockRepository()
	customer := repo.addRole(RoleCustomer, RoleTypePlatform, true)
	partner := repo.addRole(RoleDeliveryPartner, RoleTypePlatform, true)
	svc := NewService(repo, nil, nil)
	userID := uuid.New()

	first, err := svc.AssignRole(context.Background(), userID, customer.ID, nil)
	require.NoError(t, err)
	assert.True(t, first.IsActive)

	second, err := svc.AssignRole(context.Background(), userID, partner.ID, nil)
	require.NoError(t, err)
	assert.True(t, second.IsActive)

	active, err := svc.ActiveRole(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, partner.ID, active.RoleID)

	history, err := svc.RoleHistory(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, history, 2, "deactivated assignments are retained")

	activeCount := 0
	for _, ur := range history {
		if ur.IsActive {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestAssignRoleRetriesLostRace(t *testing.T) {
	repo := newMockRepository()
	customer := repo.addRole(RoleCustomer, RoleTypePlatform, true)
	svc := NewService(repo, nil, nil)
	userID := uuid.New()

	// A concurrent first-time assignment committed between our deactivate and
	// insert; the store surfaces the one-active index violation once.
	repo.assignErrors = []error{
		&pgconn.PgError{Code: "23505", ConstraintName: "user_roles_one_active"},
	}

	assigned, err := svc.AssignRole(context.Background(), userID, customer.ID, nil)
	require.NoError(t, err)
	assert.True(t, assigned.IsActive)
	assert.Equal(t, 2, repo.assignCalls, "conflict is retried, not surfaced")
}

func TestAssignRoleDoesNotRetryOtherErrors(t *testing.T) {
	repo := newMockRepository()
	customer := repo.addRole(RoleCustomer, RoleTypePlatform, true)
	svc := NewService(repo, nil, nil)

	repo.assignErrors = []error{
		&pgconn.PgError{Code: "23503", ConstraintName: "user_roles_user_id_fkey"},
	}

	_, err := svc.AssignRole(context.Background(), uuid.New(), customer.ID, nil)
	assert.Error(t, err)
	assert.Equal(t, 1, repo.assignCalls)
}

func TestAssignRoleGivesUpAfterRepeatedConflicts(t *testing.T) {
	repo := newMockRepository()
	customer := repo.addRole(RoleCustomer, RoleTypePlatform, true)
	svc := NewService(repo, nil, nil)

	conflict := &pgconn.PgError{Code: "23505", ConstraintName: "user_roles_one_active"}
	repo.assignErrors = []error{conflict, conflict, conflict, conflict}

	_, err := svc.AssignRole(context.Background(), uuid.New(), customer.ID, nil)
	assert.Error(t, err)
	assert.Equal(t, maxAssignAttempts, repo.assignCalls)
}

func TestAssignRoleRejectsInactiveRole(t *testing.T) {
	repo := newMockRepository()
	retired := repo.addRole(RoleBranchStaff, RoleTypeRestaurant, false)
	svc := NewService(repo, nil, nil)

	_, err := svc.AssignRole(context.Background(), uuid.New(), retired.ID, nil)
	assert.Error(t, err)
}

func TestAssignRoleRejectsPastExpiry(t *testing.T) {
	repo := newMockRepository()
	customer := repo.addRole(RoleCustomer, RoleTypePlatform, true)
	svc := NewService(repo, nil, nil)

	past := time.Now().Add(-time.Minute)
	_, err := svc.AssignRole(context.Background(), uuid.New(), customer.ID, &past)
	assert.Error(t, err)
}

func TestExpiredAssignmentNotActive(t *testing.T) {
	repo := newMockRepository()
	customer := repo.addRole(RoleCustomer, RoleTypePlatform, true)
	svc := NewService(repo, nil, nil)
	userID := uuid.New()

	soon := time.Now().Add(time.Second)
	_, err := svc.AssignRole(context.Background(), userID, customer.ID, &soon)
	require.NoError(t, err)

	// Simulate the window closing.
	rows := repo.assignments[userID]
	past := time.Now().Add(-time.Minute)
	rows[0].ExpiresAt = &past
	repo.assignments[userID] = rows

	_, err = svc.ActiveRole(context.Background(), userID)
	assert.ErrorIs(t, err, shared.ErrNoActiveRole)

	name, err := svc.ActiveRoleName(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestDeactivateExpiredSweep(t *testing.T) {
	repo := newMockRepository()
	customer := repo.addRole(RoleCustomer, RoleTypePlatform, true)
	svc := NewService(repo, nil, nil)
	userID := uuid.New()

	soon := time.Now().Add(time.Second)
	_, err := svc.AssignRole(context.Background(), userID, customer.ID, &soon)
	require.NoError(t, err)

	rows := repo.assignments[userID]
	past := time.Now().Add(-time.Minute)
	rows[0].ExpiresAt = &past
	repo.assignments[userID] = rows

	n, err := svc.DeactivateExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.False(t, repo.assignments[userID][0].IsActive)
}

// ============================================================================
// PERMISSION EVALUATION
// ============================================================================

func TestCheckDefaultDeny(t *testing.T) {
	repo := newMockRepository()
	customer := repo.addRole(RoleCustomer, RoleTypePlatform, true)
	svc := NewService(repo, nil, nil)

	level, err := svc.Check(context.Background(), customer.ID, ResourceRestaurant, ActionDelete)
	require.NoError(t, err)
	assert.Equal(t, AccessNone, level)

	ok, err := svc.HasPermission(context.Background(), customer.ID, ResourceRestaurant, ActionDelete)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAccessLevelSemantics(t *testing.T) {
	repo := newMockRepository()
	role := repo.addRole(RoleBranchStaff, RoleTypeRestaurant, true)
	repo.grant(role.ID, ResourceMenu, ActionRead, AccessReadOnly)
	repo.grant(role.ID, ResourceOrders, ActionUpdate, AccessLimited)
	repo.grant(role.ID, ResourceUserProfile, ActionUpdate, AccessFull)
	svc := NewService(repo, nil, nil)

	// READ_ONLY grants visibility but not writes.
	ok, err := svc.HasPermission(context.Background(), role.ID, ResourceMenu, ActionRead)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.HasWritePermission(context.Background(), role.ID, ResourceMenu, ActionRead)
	require.NoError(t, err)
	assert.False(t, ok)

	// LIMITED and FULL both permit mutation.
	ok, err = svc.HasWritePermission(context.Background(), role.ID, ResourceOrders, ActionUpdate)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.HasWritePermission(context.Background(), role.ID, ResourceUserProfile, ActionUpdate)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestObjectAccessOwnershipOverride(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil, nil)
	owner := uuid.New()
	stranger := uuid.New()
	obj := ownedThing{owner: owner}

	// The owner passes without any role at all.
	ok, err := svc.ObjectAccess(context.Background(), owner, obj, ResourceRatings, ActionUpdate)
	require.NoError(t, err)
	assert.True(t, ok)

	// A non-owner with no active role is denied, not errored.
	ok, err = svc.ObjectAccess(context.Background(), stranger, obj, ResourceRatings, ActionUpdate)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestObjectAccessFallsBackToRole(t *testing.T) {
	repo := newMockRepository()
	admin := repo.addRole(RoleSuperAdmin, RoleTypeSystem, true)
	repo.grant(admin.ID, ResourceRatings, ActionDelete, AccessFull)
	svc := NewService(repo, nil, nil)

	adminUser := uuid.New()
	_, err := svc.AssignRole(context.Background(), adminUser, admin.ID, nil)
	require.NoError(t, err)

	obj := ownedThing{owner: uuid.New()}
	ok, err := svc.ObjectAccess(context.Background(), adminUser, obj, ResourceRatings, ActionDelete)
	require.NoError(t, err)
	assert.True(t, ok, "role write grant authorizes non-owners")
}

func TestPermissionsForUser(t *testing.T) {
	repo := newMockRepository()
	role := repo.addRole(RoleCustomer, RoleTypePlatform, true)
	repo.grant(role.ID, ResourceOrders, ActionCreate, AccessFull)
	repo.grant(role.ID, ResourceMenu, ActionRead, AccessReadOnly)
	svc := NewService(repo, nil, nil)

	userID := uuid.New()
	_, err := svc.AssignRole(context.Background(), userID, role.ID, nil)
	require.NoError(t, err)

	perms, err := svc.PermissionsForUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, perms, 2)

	_, err = svc.PermissionsForUser(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNoActiveRole)
}

// ============================================================================
// CACHE
// ============================================================================

func TestCheckUsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMockRepository()
	role := repo.addRole(RoleCustomer, RoleTypePlatform, true)
	repo.grant(role.ID, ResourceOrders, ActionCreate, AccessFull)
	svc := NewService(repo, NewPermissionCache(client, time.Minute), nil)

	level, err := svc.Check(context.Background(), role.ID, ResourceOrders, ActionCreate)
	require.NoError(t, err)
	assert.Equal(t, AccessFull, level)
	assert.Equal(t, 1, repo.accessForCalls)

	level, err = svc.Check(context.Background(), role.ID, ResourceOrders, ActionCreate)
	require.NoError(t, err)
	assert.Equal(t, AccessFull, level)
	assert.Equal(t, 1, repo.accessForCalls, "second lookup served from cache")

	// Misses are cached too.
	_, err = svc.Check(context.Background(), role.ID, ResourceOrders, ActionDelete)
	require.NoError(t, err)
	_, err = svc.Check(context.Background(), role.ID, ResourceOrders, ActionDelete)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.accessForCalls)
}

func TestCheckSurvivesDeadCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	repo := newMockRepository()
	role := repo.addRole(RoleCustomer, RoleTypePlatform, true)
	repo.grant(role.ID, ResourceOrders, ActionCreate, AccessFull)
	svc := NewService(repo, NewPermissionCache(client, time.Minute), nil)

	level, err := svc.Check(context.Background(), role.ID, ResourceOrders, ActionCreate)
	require.NoError(t, err)
	assert.Equal(t, AccessFull, level)
}

// ============================================================================
// ACTION MAPPING
// ============================================================================

func TestActionForMethod(t *testing.T) {
	assert.Equal(t, ActionCreate, ActionForMethod(http.MethodPost))
	assert.Equal(t, ActionUpdate, ActionForMethod(http.MethodPut))
	assert.Equal(t, ActionUpdate, ActionForMethod(http.MethodPatch))
	assert.Equal(t, ActionDelete, ActionForMethod(http.MethodDelete))
	assert.Equal(t, ActionRead, ActionForMethod(http.MethodGet))
	assert.Equal(t, ActionRead, ActionForMethod(http.MethodHead))
	assert.Equal(t, ActionRead, ActionForMethod("SOMETHING-ELSE"))
}
