package auth

import "context"

type contextKey struct{}

// Identity describes the authenticated caller attached to a request context.
type Identity struct {
	KeyID         string
	UserID        string
	Name          string
	AllowedModels []string
	RequestLimit  *int
}

// AllowsModel reports whether the identity may use the given model.
// An empty allowlist permits every model.
func (id Identity) AllowsModel(model string) bool {
	if len(id.AllowedModels) == 0 {
		return true
	}
	for _, m := range id.AllowedModels {
		if m == model || m == "*" {
			return true
		}
	}
	return false
}

// ContextWithIdentity attaches an identity to a context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFromContext extracts the authenticated identity, if present.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}
