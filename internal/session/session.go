// Package session resolves bearer tokens issued by the managed auth service
// into users.
package session

import (
	"context"
	"errors"
)

// ErrInvalidSession means the auth service rejected the token.
var ErrInvalidSession = errors.New("invalid or expired session")

// User is the authenticated end user.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Validator resolves a bearer token to a user.
type Validator interface {
	Validate(ctx context.Context, token string) (*User, error)
}

type contextKey string

const userKey contextKey = "session.user"

// WithUser stores the authenticated user in the context.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the user stored by WithUser.
func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userKey).(*User)
	return user, ok && user != nil
}
