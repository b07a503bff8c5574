// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithUser/FromContext for propagating auth info via context

package auth

import (
	"context"
)

// User holds the authenticated identity extracted from a request.
// It is populated by the HTTP middleware and retrieved from context in handlers.
type User struct {
	Subject string // subject claim of the verified token
}

// userContextKey is the key type for storing a User in context.Context.
type userContextKey struct{}

// WithUser returns a new context with the User attached.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// FromContext retrieves the User from the context, returning nil if not present.
func FromContext(ctx context.Context) *User {
	val := ctx.Value(userContextKey{})
	if val == nil {
		return nil
	}
	user, ok := val.(*User)
	if !ok {
		return nil
	}
	return user
}
