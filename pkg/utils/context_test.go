package utils

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestUserContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := GetUserIDFromContext(ctx); ok {
		t.Fatal("empty context has a user")
	}
	if _, ok := GetRoleFromContext(ctx); ok {
		t.Fatal("empty context has a role")
	}

	userID := uuid.New()
	ctx = SetUserContext(ctx, userID, "admin")
	ctx = SetTokenContext(ctx, "sess-1")

	if got, ok := GetUserIDFromContext(ctx); !ok || got != userID {
		t.Fatalf("user = %s, %v", got, ok)
	}
	if got, ok := GetRoleFromContext(ctx); !ok || got != "admin" {
		t.Fatalf("role = %q, %v", got, ok)
	}
	if got, ok := GetTokenFromContext(ctx); !ok || got != "sess-1" {
		t.Fatalf("token = %q, %v", got, ok)
	}

	// a plain string key must not collide with the typed keys
	ctx = context.WithValue(context.Background(), "user_id", userID.String())
	if _, ok := GetUserIDFromContext(ctx); ok {
		t.Fatal("untyped key was read as the user")
	}
}
