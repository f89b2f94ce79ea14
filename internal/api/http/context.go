package http

import (
	"context"

	"bookworm-backend/internal/domain"
)

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity stores the authenticated caller on the request context.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the authenticated caller, if any.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey).(domain.Identity)
	return id, ok
}
