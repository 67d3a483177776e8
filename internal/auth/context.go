package auth

import (
	"context"

	"github.com/dukerupert/starchart/internal/model"
)

type contextKey struct{}

// Actor is the family member a request acts on behalf of.
type Actor struct {
	MemberID int64
	Name     string
	Role     model.Role
}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(contextKey{}).(Actor)
	return a, ok
}

func MemberID(ctx context.Context) int64 {
	a, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return a.MemberID
}

func IsParent(ctx context.Context) bool {
	a, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return a.Role == model.RoleParent
}

func IsChild(ctx context.Context) bool {
	a, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return a.Role == model.RoleChild
}
