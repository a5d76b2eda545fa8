package auth

import (
	"context"

	"github.com/google/uuid"
)

type userIDKey struct{}

// ContextWithUserID stores the authenticated merchant user id, as
// carried in the token subject, on the request context.
func ContextWithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

// UserIDFromContext returns the merchant user id set by the auth
// middleware. Webhook and internal routes never carry one.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey{}).(uuid.UUID)
	return id, ok
}
