package auth

import (
	"context"
	"strconv"
)

// Identity captures the authenticated mini-app session principal.
type Identity struct {
	UserID    int64
	SessionID string
	// AdminEligible reports whether the user may switch the storefront into admin mode.
	AdminEligible bool
}

// Subject returns the user id formatted for logs and token subjects.
func (i *Identity) Subject() string {
	if i == nil {
		return ""
	}
	return strconv.FormatInt(i.UserID, 10)
}

type contextKey string

const identityContextKey contextKey = "github.com/muse-store/miniapp/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
