// Package session carries the authenticated principal through a request.
// The auth middleware is the only writer; everything else reads through
// FromContext or Require.
package session

import (
	"context"

	"lorelink/internal/models"
)

type Principal struct {
	UserID   string
	Verified bool
}

type contextKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok && p.UserID != ""
}

// Require returns the principal or models.ErrAuthRequired.
func Require(ctx context.Context) (Principal, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return Principal{}, models.ErrAuthRequired
	}
	return p, nil
}
