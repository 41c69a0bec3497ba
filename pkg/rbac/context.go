package rbac

import (
	"context"
	"errors"

	"github.com/psantana5/smartworking/pkg/models"
)

// Context keys for caller identity
type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	UserRoleKey contextKey = "user_role"
)

var ErrNoUserInContext = errors.New("no user ID in context")

// GetUserID extracts the authenticated caller's ID from context
func GetUserID(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(UserIDKey).(string)
	if !ok || userID == "" {
		return "", ErrNoUserInContext
	}
	return userID, nil
}

// GetUserRole extracts the caller's role from context
func GetUserRole(ctx context.Context) models.Role {
	role, _ := ctx.Value(UserRoleKey).(models.Role)
	return role
}

// WithUser adds user ID and role to context
func WithUser(ctx context.Context, userID string, role models.Role) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	ctx = context.WithValue(ctx, UserRoleKey, role)
	return ctx
}
