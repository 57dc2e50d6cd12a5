package auth

import "context"

const RoleAdmin = "admin"

// Identity is the authenticated caller as carried by the session token.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// IsAdmin reports whether the caller may act on orders it does not own.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// CanAccess reports whether the caller owns ownerID's data or is an admin.
func (i Identity) CanAccess(ownerID string) bool {
	return i.IsAdmin() || i.UserID == ownerID
}

type contextKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity attached by Middleware, if any.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	if !ok {
		return nil, false
	}
	return &id, true
}
