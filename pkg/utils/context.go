package utils

import (
	"context"

	"github.com/google/uuid"
)

type contextKey int

const (
	principalKey contextKey = iota
	sessionTokenKey
)

// principal is the authenticated caller as resolved by the auth middleware.
type principal struct {
	userID uuid.UUID
	role   string
}

func SetUserContext(ctx context.Context, userID uuid.UUID, role string) context.Context {
	return context.WithValue(ctx, principalKey, principal{userID: userID, role: role})
}

func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	p, ok := ctx.Value(principalKey).(principal)
	if !ok || p.userID == uuid.Nil {
		return uuid.Nil, false
	}
	return p.userID, true
}

func GetRoleFromContext(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(principalKey).(principal)
	if !ok || p.role == "" {
		return "", false
	}
	return p.role, true
}

// SetTokenContext stores the session token so logout can revoke it.
func SetTokenContext(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, sessionTokenKey, token)
}

func GetTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(sessionTokenKey).(string)
	return token, ok && token != ""
}
