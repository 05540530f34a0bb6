package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"parcel-share/internal/data/entity"
	"parcel-share/internal/dto/request"
	"parcel-share/pkg/utils"

	"github.com/google/uuid"
)

func (e *testEnv) sessionsOf(userID string) []entity.Session {
	e.db.mu.Lock()
	defer e.db.mu.Unlock()
	var out []entity.Session
	for _, s := range e.db.sessions {
		if s.UserID.String() == userID {
			out = append(out, s)
		}
	}
	return out
}

func TestAuth_RegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg, err := env.svc.Auth.Register(ctx, &request.RegisterRequest{Username: "ana", Email: "ana@example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.Token == "" || reg.Role != entity.RoleCustomer {
		t.Fatalf("unexpected response: %+v", reg)
	}
	if !reg.ExpiresAt.Equal(env.now.Add(24 * time.Hour)) {
		t.Fatalf("expires_at = %s", reg.ExpiresAt)
	}
	if u := env.db.users[uuid.MustParse(reg.UserID)]; u.PasswordHash == "secret123" || u.PasswordHash == "" {
		t.Fatal("password stored in clear")
	}

	for _, identifier := range []string{"ana", "ana@example.com"} {
		resp, err := env.svc.Auth.Login(ctx, &request.LoginRequest{Username: identifier, Password: "secret123"})
		if err != nil {
			t.Fatalf("login with %s: %v", identifier, err)
		}
		if resp.UserID != reg.UserID {
			t.Fatalf("login with %s returned user %s", identifier, resp.UserID)
		}
	}
	if got := len(env.sessionsOf(reg.UserID)); got != 3 {
		t.Fatalf("sessions = %d, want 3", got)
	}

	device := request.ClientInfo{UserAgent: "parcel-app/2.1", IPAddress: "203.0.113.7"}
	resp, err := env.svc.Auth.Login(ctx, &request.LoginRequest{Username: "ana", Password: "secret123", ClientInfo: device})
	if err != nil {
		t.Fatalf("login from device: %v", err)
	}
	var tagged int
	for _, s := range env.sessionsOf(resp.UserID) {
		if s.UserAgent != nil && *s.UserAgent == device.UserAgent && s.IPAddress != nil && *s.IPAddress == device.IPAddress {
			tagged++
		}
	}
	if tagged != 1 {
		t.Fatalf("sessions tagged with the device = %d, want 1", tagged)
	}

	_, err = env.svc.Auth.Login(ctx, &request.LoginRequest{Username: "ana", Password: "wrong-pass"})
	assertCode(t, err, utils.CodeInvalidCredentials)
	_, err = env.svc.Auth.Login(ctx, &request.LoginRequest{Username: "bob", Password: "secret123"})
	assertCode(t, err, utils.CodeInvalidCredentials)
}

func TestAuth_RegisterRejectsDuplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.svc.Auth.Register(ctx, &request.RegisterRequest{Username: "ana", Email: "ana@example.com", Password: "secret123"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	cases := []struct {
		name  string
		req   request.RegisterRequest
		field string
	}{
		{"same email", request.RegisterRequest{Username: "ana2", Email: "ana@example.com", Password: "secret123"}, "Email"},
		{"same username", request.RegisterRequest{Username: "ana", Email: "other@example.com", Password: "secret123"}, "Username"},
		{"short password", request.RegisterRequest{Username: "carl", Email: "carl@example.com", Password: "123"}, "Password"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := env.svc.Auth.Register(ctx, &c.req)
			appErr := assertCode(t, err, utils.CodeValidationFailed)
			if _, ok := appErr.Details[c.field]; !ok {
				t.Fatalf("details %v missing %s", appErr.Details, c.field)
			}
		})
	}
}

func TestAuth_RegisterRollsBackWithoutSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.db.failOnce("Session.Create", errors.New("connection reset"))

	_, err := env.svc.Auth.Register(ctx, &request.RegisterRequest{Username: "ana", Email: "ana@example.com", Password: "secret123"})
	assertCode(t, err, utils.CodeInternal)

	u, _ := env.store.Repo().User.FindByEmail(ctx, "ana@example.com")
	if u != nil {
		t.Fatal("user kept without a session")
	}
}

func TestAuth_LogoutAndCleanup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	reg, err := env.svc.Auth.Register(ctx, &request.RegisterRequest{Username: "ana", Email: "ana@example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	token := env.sessionsOf(reg.UserID)[0].Token

	if err := env.svc.Auth.Logout(ctx, token.String()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if s, _ := env.store.Repo().Session.FindValidSession(ctx, token); s != nil {
		t.Fatal("session still valid after logout")
	}
	assertCode(t, env.svc.Auth.Logout(ctx, "not-a-token"), utils.CodeUnauthorized)

	env.now = env.now.Add(9 * 24 * time.Hour)
	n, err := env.svc.Auth.CleanExpiredSessions(ctx)
	if err != nil || n != 1 {
		t.Fatalf("cleaned %d sessions, err=%v", n, err)
	}
}
