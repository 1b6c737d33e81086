package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/quickfood/quickfood-backend/internal/shared"
)

// Service is the role assignment engine and permission evaluator. Every
// authorization verdict re-resolves the user's active role from the store;
// the role snapshot inside access tokens is informational only.
type Service struct {
	repo   Repository
	cache  *PermissionCache
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, cache *PermissionCache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

// ListRoles returns the role catalog.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// AssignRole makes the role the user's single active role. The previous
// active assignment is deactivated in the same transaction; history rows are
// retained.
func (s *Service) AssignRole(ctx context.Context, userID, roleID uuid.UUID, expiresAt *time.Time) (UserRole, error) {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return UserRole{}, fmt.Errorf("rbac: resolve role: %w", err)
	}
	if !role.IsActive {
		return UserRole{}, fmt.Errorf("rbac: role %s is not assignable: %w", role.Name, shared.ErrNotFound)
	}
	if expiresAt != nil && !expiresAt.After(time.Now()) {
		return UserRole{}, fmt.Errorf("rbac: expiry must be in the future")
	}
	var assigned UserRole
	for attempt := 0; ; attempt++ {
		assigned, err = s.repo.AssignUserRole(ctx, userID, roleID, expiresAt)
		if err == nil {
			return assigned, nil
		}
		// A concurrent assignment for the same user committed its active row
		// between our deactivate and insert. The winner's row is now visible,
		// so re-running deactivate-then-insert succeeds.
		if !isActiveRoleConflict(err) || attempt >= maxAssignAttempts-1 {
			return UserRole{}, fmt.Errorf("rbac: assign role: %w", err)
		}
		if s.logger != nil {
			s.logger.Debug("retrying role assignment after concurrent conflict",
				slog.String("user_id", userID.String()))
		}
	}
}

const maxAssignAttempts = 3

// isActiveRoleConflict reports a unique violation on the one-active-role
// partial index.
func isActiveRoleConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "user_roles_one_active"
}

// ActiveRole returns the user's single active assignment.
func (s *Service) ActiveRole(ctx context.Context, userID uuid.UUID) (UserRole, error) {
	return s.repo.ActiveUserRole(ctx, userID)
}

// ActiveRoleName returns the user's active role name, or empty when the user
// has none. Used to snapshot the role into freshly minted access tokens.
func (s *Service) ActiveRoleName(ctx context.Context, userID uuid.UUID) (string, error) {
	ur, err := s.repo.ActiveUserRole(ctx, userID)
	if errors.Is(err, shared.ErrNoActiveRole) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(ur.RoleName), nil
}

// RoleHistory returns every assignment for the user, newest first.
func (s *Service) RoleHistory(ctx context.Context, userID uuid.UUID) ([]UserRole, error) {
	return s.repo.UserRoleHistory(ctx, userID)
}

// Check resolves the access level the role holds on the resource/action
// pair. A missing grant is AccessNone: default deny.
func (s *Service) Check(ctx context.Context, roleID uuid.UUID, resource ResourceType, action Action) (AccessLevel, error) {
	if level, ok := s.cache.Get(ctx, roleID, resource, action); ok {
		return level, nil
	}
	level, err := s.repo.AccessFor(ctx, roleID, resource, action)
	if err != nil {
		return AccessNone, fmt.Errorf("rbac: access lookup: %w", err)
	}
	s.cache.Set(ctx, roleID, resource, action, level)
	return level, nil
}

// HasPermission reports whether the role holds any grant on the pair.
// READ_ONLY counts: the coarse check only gates visibility, the action
// argument carries the read/write distinction.
func (s *Service) HasPermission(ctx context.Context, roleID uuid.UUID, resource ResourceType, action Action) (bool, error) {
	level, err := s.Check(ctx, roleID, resource, action)
	if err != nil {
		return false, err
	}
	return level.Grants(), nil
}

// HasWritePermission reports whether the role may mutate the resource.
func (s *Service) HasWritePermission(ctx context.Context, roleID uuid.UUID, resource ResourceType, action Action) (bool, error) {
	level, err := s.Check(ctx, roleID, resource, action)
	if err != nil {
		return false, err
	}
	return level.GrantsWrite(), nil
}

// ObjectAccess decides object-level access. Ownership overrides role-based
// denial: an owner may act on their own resource even without an explicit
// grant. Otherwise the verdict falls back to the write check against the
// user's active role.
func (s *Service) ObjectAccess(ctx context.Context, userID uuid.UUID, obj Ownable, resource ResourceType, action Action) (bool, error) {
	if obj != nil && obj.OwnerID() == userID {
		return true, nil
	}
	active, err := s.repo.ActiveUserRole(ctx, userID)
	if errors.Is(err, shared.ErrNoActiveRole) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.HasWritePermission(ctx, active.RoleID, resource, action)
}

// PermissionsForUser flattens every grant held by the user's active role.
func (s *Service) PermissionsForUser(ctx context.Context, userID uuid.UUID) ([]ResolvedPermission, error) {
	active, err := s.repo.ActiveUserRole(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.PermissionsForRole(ctx, active.RoleID)
}

// DeactivateExpired flips the active flag off for assignments past their
// expiry window. Run periodically by the worker.
func (s *Service) DeactivateExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeactivateExpired(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("rbac: deactivate expired: %w", err)
	}
	if n > 0 && s.logger != nil {
		s.logger.Info("deactivated expired role assignments", slog.Int64("count", n))
	}
	return n, nil
}
