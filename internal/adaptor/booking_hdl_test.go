package adaptor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"parcel-share/internal/data/entity"
	"parcel-share/internal/dto/request"
	"parcel-share/internal/dto/response"
	"parcel-share/internal/usecase"
	"parcel-share/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type stubBookingService struct {
	usecase.BookingService
	err      error
	gotActor usecase.Actor
	gotID    string
	gotCode  string
}

func (s *stubBookingService) Accept(_ context.Context, actor usecase.Actor, id string, _ *request.AcceptBookingRequest) (*response.BookingResponse, error) {
	s.gotActor, s.gotID = actor, id
	if s.err != nil {
		return nil, s.err
	}
	return &response.BookingResponse{ID: id, Status: entity.BookingStatusPaymentAuthorized}, nil
}

func (s *stubBookingService) ValidateDelivery(_ context.Context, actor usecase.Actor, id string, req *request.ValidateCodeRequest) (*response.BookingResponse, error) {
	s.gotActor, s.gotID, s.gotCode = actor, id, req.Code
	if s.err != nil {
		return nil, s.err
	}
	return &response.BookingResponse{ID: id, Status: entity.BookingStatusCompleted}, nil
}

func (s *stubBookingService) Receipt(_ context.Context, _ usecase.Actor, id string) ([]byte, string, error) {
	if s.err != nil {
		return nil, "", s.err
	}
	return []byte("%PDF-1.3 test"), "RCPT-20250310-000001.pdf", nil
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  map[string]any  `json:"errors"`
}

func newBookingRouter(svc *stubBookingService) http.Handler {
	h := NewBookingHandler(svc, nil, nil, zap.NewNop())
	r := chi.NewRouter()
	r.Post("/api/bookings/{id}/accept", h.Accept)
	r.Post("/api/bookings/{id}/delivery-code/validate", h.ValidateDelivery)
	r.Get("/api/bookings/{id}/receipt", h.Receipt)
	return r
}

func serve(t *testing.T, h http.Handler, method, target, body string, userID uuid.UUID) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if userID != uuid.Nil {
		req = req.WithContext(utils.SetUserContext(req.Context(), userID, "customer"))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return rec, env
}

func TestBookingHandler_Accept(t *testing.T) {
	svc := &stubBookingService{}
	router := newBookingRouter(svc)
	userID, bookingID := uuid.New(), uuid.NewString()

	rec, env := serve(t, router, http.MethodPost, "/api/bookings/"+bookingID+"/accept", "", userID)
	if rec.Code != http.StatusOK || !env.Status {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if svc.gotActor.ID != userID || svc.gotID != bookingID {
		t.Fatalf("service called with actor=%s id=%s", svc.gotActor.ID, svc.gotID)
	}
	var b response.BookingResponse
	if err := json.Unmarshal(env.Data, &b); err != nil || b.Status != entity.BookingStatusPaymentAuthorized {
		t.Fatalf("data = %s", env.Data)
	}
}

func TestBookingHandler_ErrorsKeepTheirCode(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"payment account missing", utils.NewAppError(utils.CodeStripeAccountRequired, http.StatusUnprocessableEntity, "link a payout account first"), http.StatusUnprocessableEntity, "stripe_account_required"},
		{"lock held", utils.ErrConcurrent(), http.StatusConflict, "concurrent_modification"},
		{"wrong actor", utils.ErrForbidden("not yours"), http.StatusForbidden, "forbidden_actor"},
		{"untyped failure", errors.New("pq: connection reset"), http.StatusInternalServerError, "internal_error"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			router := newBookingRouter(&stubBookingService{err: c.err})
			rec, env := serve(t, router, http.MethodPost, "/api/bookings/"+uuid.NewString()+"/accept", `{}`, uuid.New())
			if rec.Code != c.status || env.Status {
				t.Fatalf("status = %d, want %d", rec.Code, c.status)
			}
			if env.Errors["code"] != c.code {
				t.Fatalf("errors = %v, want code %s", env.Errors, c.code)
			}
			if strings.Contains(rec.Body.String(), "pq:") {
				t.Fatal("internal cause leaked to the client")
			}
		})
	}
}

func TestBookingHandler_CodeDetailsReachTheClient(t *testing.T) {
	appErr := utils.NewAppError(utils.CodeCodeInvalid, http.StatusUnprocessableEntity, "code does not match").
		WithDetail("attempts_remaining", 2)
	svc := &stubBookingService{err: appErr}
	router := newBookingRouter(svc)

	rec, env := serve(t, router, http.MethodPost, "/api/bookings/"+uuid.NewString()+"/delivery-code/validate", `{"code":"123456"}`, uuid.New())
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	if svc.gotCode != "123456" {
		t.Fatalf("code not passed through: %q", svc.gotCode)
	}
	if env.Errors["code"] != "code_invalid" || env.Errors["attempts_remaining"] != float64(2) {
		t.Fatalf("errors = %v", env.Errors)
	}
}

func TestBookingHandler_RejectsBadInput(t *testing.T) {
	router := newBookingRouter(&stubBookingService{})

	rec, env := serve(t, router, http.MethodPost, "/api/bookings/"+uuid.NewString()+"/delivery-code/validate", `{"code":`, uuid.New())
	if rec.Code != http.StatusBadRequest || env.Errors["code"] != "validation_failed" {
		t.Fatalf("malformed body: status = %d errors = %v", rec.Code, env.Errors)
	}

	rec, _ = serve(t, router, http.MethodPost, "/api/bookings/"+uuid.NewString()+"/accept", "", uuid.Nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: status = %d", rec.Code)
	}
}

func TestBookingHandler_Receipt(t *testing.T) {
	router := newBookingRouter(&stubBookingService{})

	rec, _ := serve(t, router, http.MethodGet, "/api/bookings/"+uuid.NewString()+"/receipt", "", uuid.New())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content type = %s", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "RCPT-20250310-000001.pdf") {
		t.Fatalf("content disposition = %s", cd)
	}
	if !strings.HasPrefix(rec.Body.String(), "%PDF") {
		t.Fatal("body is not a pdf")
	}
}

type stubWebhookService struct {
	payload   []byte
	signature string
	err       error
}

func (s *stubWebhookService) Handle(_ context.Context, payload []byte, signature string) error {
	s.payload, s.signature = payload, signature
	return s.err
}

func TestWebhookHandler_PassesRawBody(t *testing.T) {
	svc := &stubWebhookService{}
	h := NewWebhookHandler(svc, zap.NewNop())
	body := `{"id":"evt_1","type":"account.updated"}`

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", strings.NewReader(body))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	rec := httptest.NewRecorder()
	h.Stripe(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if string(svc.payload) != body || svc.signature != "t=1,v1=abc" {
		t.Fatalf("service got payload=%q signature=%q", svc.payload, svc.signature)
	}

	svc.err = utils.ErrUnauthorized("invalid webhook signature")
	rec = httptest.NewRecorder()
	h.Stripe(rec, httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", strings.NewReader(body)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad signature: status = %d", rec.Code)
	}
}
