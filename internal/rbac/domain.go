package rbac

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RoleType groups roles by the level they operate at.
type RoleType string

const (
	RoleTypeSystem     RoleType = "SYSTEM"
	RoleTypeRestaurant RoleType = "RESTAURANT"
	RoleTypePlatform   RoleType = "PLATFORM"
)

// RoleName is the seeded role catalog. The catalog is immutable at runtime.
type RoleName string

const (
	RoleSuperAdmin      RoleName = "SUPER_ADMIN"
	RoleSystemStaff     RoleName = "SYSTEM_STAFF"
	RoleRestaurantAdmin RoleName = "RESTAURANT_ADMIN"
	RoleRestaurantOwner RoleName = "RESTAURANT_OWNER"
	RoleBranchManager   RoleName = "BRANCH_MANAGER"
	RoleBranchStaff     RoleName = "BRANCH_STAFF"
	RoleCustomer        RoleName = "CUSTOMER"
	RoleDeliveryPartner RoleName = "DELIVERY_PARTNER"
)

// ResourceType names a protected resource class.
type ResourceType string

const (
	ResourceRestaurant  ResourceType = "RESTAURANT"
	ResourceBranch      ResourceType = "BRANCH"
	ResourceUserProfile ResourceType = "USER_PROFILE"
	ResourceMenu        ResourceType = "MENU"
	ResourceFoodItems   ResourceType = "FOOD_ITEMS"
	ResourceOrders      ResourceType = "ORDERS"
	ResourceRatings     ResourceType = "RATINGS"
	ResourceAddress     ResourceType = "ADDRESS"
)

// Action is the operation attempted on a resource.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionRead   Action = "READ"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// AccessLevel is the granularity of a role's grant on a resource/action pair.
type AccessLevel string

const (
	AccessFull     AccessLevel = "FULL"
	AccessLimited  AccessLevel = "LIMITED"
	AccessReadOnly AccessLevel = "READ_ONLY"
	AccessNone     AccessLevel = "NONE"
)

// Grants reports whether the level represents any access at all.
func (l AccessLevel) Grants() bool {
	return l == AccessFull || l == AccessLimited || l == AccessReadOnly
}

// GrantsWrite reports whether the level permits mutation.
func (l AccessLevel) GrantsWrite() bool {
	return l == AccessFull || l == AccessLimited
}

// Role is an entry in the seeded role catalog.
type Role struct {
	ID          uuid.UUID
	Name        RoleName
	Type        RoleType
	Description string
	IsActive    bool
	CreatedAt   time.Time
}

// UserRole assigns a role to a user for a time window. At most one row per
// user carries IsActive=true at any committed state.
type UserRole struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	RoleID     uuid.UUID
	RoleName   RoleName
	IsActive   bool
	AssignedAt time.Time
	ExpiresAt  *time.Time
}

// Expired reports whether the assignment window has closed. Expiry is
// advisory: rows are reported absent on read and flipped by the sweep.
func (ur UserRole) Expired(now time.Time) bool {
	return ur.ExpiresAt != nil && !now.Before(*ur.ExpiresAt)
}

// Permission is a (resource, action) pair, unique together.
type Permission struct {
	ID       uuid.UUID
	Resource ResourceType
	Action   Action
}

// RolePermission grants a role an access level on a permission. Condition is
// an opaque payload reserved for future scoping rules and never interpreted.
type RolePermission struct {
	ID           uuid.UUID
	RoleID       uuid.UUID
	PermissionID uuid.UUID
	Access       AccessLevel
	Condition    map[string]string
}

// ResolvedPermission is a flattened grant as exposed to callers.
type ResolvedPermission struct {
	Resource ResourceType `json:"resource"`
	Action   Action       `json:"action"`
	Access   AccessLevel  `json:"access_level"`
}

// Ownable is implemented by resources participating in object-level checks.
// Ownership always overrides role-based denial.
type Ownable interface {
	OwnerID() uuid.UUID
}

// ActionForMethod maps an HTTP verb to the action it attempts. The mapping is
// total: unknown verbs read.
func ActionForMethod(method string) Action {
	switch method {
	case http.MethodPost:
		return ActionCreate
	case http.MethodPut, http.MethodPatch:
		return ActionUpdate
	case http.MethodDelete:
		return ActionDelete
	default:
		return ActionRead
	}
}
