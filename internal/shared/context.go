package shared

import (
	"context"

	"github.com/google/uuid"
)

// Identity describes the authenticated actor attached to a request. Role is
// the role-name snapshot carried by the access token; authorization decisions
// re-resolve the active role instead of trusting it.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity from context. The second return
// is false for anonymous requests.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}
