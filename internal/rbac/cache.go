package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PermissionCache memoises role-permission lookups in Redis. The catalog is
// seeded once and mutated only by operators, so a short TTL keeps lookups hot
// without an invalidation protocol. A nil cache or an unreachable Redis
// degrades to direct store reads.
type PermissionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPermissionCache instantiates the cache helper.
func NewPermissionCache(client *redis.Client, ttl time.Duration) *PermissionCache {
	return &PermissionCache{client: client, ttl: ttl}
}

func permissionKey(roleID uuid.UUID, resource ResourceType, action Action) string {
	return fmt.Sprintf("rbac:perm:%s:%s:%s", roleID, resource, action)
}

// Get returns the cached access level, if present.
func (c *PermissionCache) Get(ctx context.Context, roleID uuid.UUID, resource ResourceType, action Action) (AccessLevel, bool) {
	if c == nil || c.client == nil {
		return AccessNone, false
	}
	raw, err := c.client.Get(ctx, permissionKey(roleID, resource, action)).Result()
	if err != nil {
		return AccessNone, false
	}
	return AccessLevel(raw), true
}

// Set stores the access level. AccessNone is cached too so missing grants do
// not hit the store on every request.
func (c *PermissionCache) Set(ctx context.Context, roleID uuid.UUID, resource ResourceType, action Action, level AccessLevel) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Set(ctx, permissionKey(roleID, resource, action), string(level), c.ttl).Err()
}
