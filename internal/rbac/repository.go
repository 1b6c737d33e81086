package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quickfood/quickfood-backend/internal/platform/db"
	"github.com/quickfood/quickfood-backend/internal/shared"
)

// Repository defines persistence operations for the role and permission store.
type Repository interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id uuid.UUID) (Role, error)
	GetRoleByName(ctx context.Context, name RoleName) (Role, error)
	ActiveUserRole(ctx context.Context, userID uuid.UUID) (UserRole, error)
	UserRoleHistory(ctx context.Context, userID uuid.UUID) ([]UserRole, error)
	AssignUserRole(ctx context.Context, userID, roleID uuid.UUID, expiresAt *time.Time) (UserRole, error)
	AccessFor(ctx context.Context, roleID uuid.UUID, resource ResourceType, action Action) (AccessLevel, error)
	PermissionsForRole(ctx context.Context, roleID uuid.UUID) ([]ResolvedPermission, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

// ListRoles returns the role catalog ordered by name.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, role_type, description, is_active, created_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Type, &role.Description, &role.IsActive, &role.CreatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by ID.
func (r *PGRepository) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	return r.scanRole(r.pool.QueryRow(ctx,
		`SELECT id, name, role_type, description, is_active, created_at FROM roles WHERE id = $1`, id))
}

// GetRoleByName fetches a role from the catalog by its name.
func (r *PGRepository) GetRoleByName(ctx context.Context, name RoleName) (Role, error) {
	return r.scanRole(r.pool.QueryRow(ctx,
		`SELECT id, name, role_type, description, is_active, created_at FROM roles WHERE name = $1`, name))
}

func (r *PGRepository) scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Type, &role.Description, &role.IsActive, &role.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// ActiveUserRole returns the single active assignment for the user. Rows
// whose expiry window has closed are reported absent without being mutated.
func (r *PGRepository) ActiveUserRole(ctx context.Context, userID uuid.UUID) (UserRole, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT ur.id, ur.user_id, ur.role_id, ro.name, ur.is_active, ur.assigned_at, ur.expires_at
		FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id
		WHERE ur.user_id = $1
		  AND ur.is_active
		  AND (ur.expires_at IS NULL OR ur.expires_at > NOW())`,
		userID)
	var ur UserRole
	err := row.Scan(&ur.ID, &ur.UserID, &ur.RoleID, &ur.RoleName, &ur.IsActive, &ur.AssignedAt, &ur.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserRole{}, shared.ErrNoActiveRole
	}
	if err != nil {
		return UserRole{}, err
	}
	return ur, nil
}

// UserRoleHistory returns every assignment for the user, newest first.
func (r *PGRepository) UserRoleHistory(ctx context.Context, userID uuid.UUID) ([]UserRole, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ur.id, ur.user_id, ur.role_id, ro.name, ur.is_active, ur.assigned_at, ur.expires_at
		FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY ur.assigned_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var history []UserRole
	for rows.Next() {
		var ur UserRole
		if err := rows.Scan(&ur.ID, &ur.UserID, &ur.RoleID, &ur.RoleName, &ur.IsActive, &ur.AssignedAt, &ur.ExpiresAt); err != nil {
			return nil, err
		}
		history = append(history, ur)
	}
	return history, rows.Err()
}

// AssignUserRole deactivates the user's current assignment and inserts the
// new one inside a single transaction. Locking the parent users row
// serializes concurrent assignments for the same user even when no
// user_roles rows exist yet, so no committed state ever shows two active
// rows and no assignment trips the one-active partial unique index.
func (r *PGRepository) AssignUserRole(ctx context.Context, userID, roleID uuid.UUID, expiresAt *time.Time) (UserRole, error) {
	var assigned UserRole
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID); err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE user_roles SET is_active = FALSE WHERE user_id = $1 AND is_active`, userID); err != nil {
			return fmt.Errorf("deactivate previous role: %w", err)
		}
		row := tx.QueryRow(ctx, `
			INSERT INTO user_roles (id, user_id, role_id, is_active, assigned_at, expires_at)
			VALUES ($1, $2, $3, TRUE, NOW(), $4)
			RETURNING id, user_id, role_id, is_active, assigned_at, expires_at`,
			uuid.New(), userID, roleID, expiresAt)
		if err := row.Scan(&assigned.ID, &assigned.UserID, &assigned.RoleID, &assigned.IsActive, &assigned.AssignedAt, &assigned.ExpiresAt); err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}
		return nil
	})
	if err != nil {
		return UserRole{}, err
	}
	role, err := r.GetRole(ctx, roleID)
	if err != nil {
		return UserRole{}, err
	}
	assigned.RoleName = role.Name
	return assigned, nil
}

// AccessFor resolves the access level granted to the role on the
// resource/action pair. Absence of a grant is AccessNone, not an error.
func (r *PGRepository) AccessFor(ctx context.Context, roleID uuid.UUID, resource ResourceType, action Action) (AccessLevel, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT rp.access_level
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1 AND p.resource_type = $2 AND p.action = $3`,
		roleID, resource, action)
	var level AccessLevel
	err := row.Scan(&level)
	if errors.Is(err, pgx.ErrNoRows) {
		return AccessNone, nil
	}
	if err != nil {
		return AccessNone, err
	}
	return level, nil
}

// PermissionsForRole returns every grant held by the role.
func (r *PGRepository) PermissionsForRole(ctx context.Context, roleID uuid.UUID) ([]ResolvedPermission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.resource_type, p.action, rp.access_level
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.resource_type, p.action`,
		roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []ResolvedPermission
	for rows.Next() {
		var p ResolvedPermission
		if err := rows.Scan(&p.Resource, &p.Action, &p.Access); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// DeactivateExpired flips the active flag off for assignments whose expiry
// window closed. Invoked by the background sweep.
func (r *PGRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE user_roles SET is_active = FALSE WHERE is_active AND expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
