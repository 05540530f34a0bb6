package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"parcel-share/internal/data/entity"
	"parcel-share/internal/data/repository"
	"parcel-share/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type stubSessions struct {
	repository.SessionRepository
	valid map[uuid.UUID]*entity.Session
}

func (s *stubSessions) FindValidSession(_ context.Context, token uuid.UUID) (*entity.Session, error) {
	return s.valid[token], nil
}

type stubUsers struct {
	repository.UserRepository
	users map[uuid.UUID]*entity.User
}

func (s *stubUsers) FindByID(_ context.Context, id uuid.UUID) (*entity.User, error) {
	return s.users[id], nil
}

func TestAuthSession(t *testing.T) {
	const secret = "test-secret"
	active := &entity.User{Base: entity.Base{ID: uuid.New()}, Role: entity.RoleAdmin, IsActive: true}
	inactive := &entity.User{Base: entity.Base{ID: uuid.New()}, Role: entity.RoleCustomer}
	live, revoked, dormant := uuid.New(), uuid.New(), uuid.New()

	repo := &repository.Repository{
		Session: &stubSessions{valid: map[uuid.UUID]*entity.Session{
			live:    {UserID: active.ID, Token: live},
			dormant: {UserID: inactive.ID, Token: dormant},
		}},
		User: &stubUsers{users: map[uuid.UUID]*entity.User{active.ID: active, inactive.ID: inactive}},
	}

	sign := func(userID, session uuid.UUID, expires time.Duration) string {
		raw, err := utils.GenerateToken(secret, userID, session, "admin", time.Now().Add(expires))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return raw
	}

	var seenUser uuid.UUID
	var seenToken string
	h := AuthSession(repo, secret, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser, _ = utils.GetUserIDFromContext(r.Context())
		seenToken, _ = utils.GetTokenFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"valid bearer", "Bearer " + sign(active.ID, live, time.Hour), "", http.StatusNoContent},
		{"valid query token", "", sign(active.ID, live, time.Hour), http.StatusNoContent},
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + sign(active.ID, live, time.Hour), "", http.StatusUnauthorized},
		{"expired jwt", "Bearer " + sign(active.ID, live, -time.Minute), "", http.StatusUnauthorized},
		{"revoked session", "Bearer " + sign(active.ID, revoked, time.Hour), "", http.StatusUnauthorized},
		{"inactive user", "Bearer " + sign(inactive.ID, dormant, time.Hour), "", http.StatusUnauthorized},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			seenUser, seenToken = uuid.Nil, ""
			target := "/api/bookings"
			if c.query != "" {
				target += "?token=" + c.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if c.header != "" {
				req.Header.Set("Authorization", c.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != c.want {
				t.Fatalf("status = %d, want %d", rec.Code, c.want)
			}
			if c.want == http.StatusNoContent && (seenUser != active.ID || seenToken != live.String()) {
				t.Fatalf("context not populated: user=%s token=%s", seenUser, seenToken)
			}
		})
	}
}

func TestAdmin(t *testing.T) {
	h := Admin(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name string
		role string
		want int
	}{
		{"admin", "admin", http.StatusNoContent},
		{"customer", "customer", http.StatusForbidden},
		{"anonymous", "", http.StatusUnauthorized},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/cancellations", nil)
			if c.role != "" {
				req = req.WithContext(utils.SetUserContext(req.Context(), uuid.New(), c.role))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != c.want {
				t.Fatalf("status = %d, want %d", rec.Code, c.want)
			}
		})
	}
}
