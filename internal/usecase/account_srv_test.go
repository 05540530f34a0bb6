package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"parcel-share/internal/data/entity"
	"parcel-share/internal/dto/request"
	"parcel-share/pkg/payment"
	"parcel-share/pkg/realtime"
	"parcel-share/pkg/utils"

	"github.com/google/uuid"
)

func TestTrip_CreateAndList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	traveler := env.user("tom")
	price := 4.5

	resp, err := env.svc.Trip.Create(ctx, traveler, &request.CreateTripRequest{
		Origin:      "Lisbon",
		Destination: "Berlin",
		DepartureAt: env.now.Add(48 * time.Hour),
		CapacityKg:  10,
		PricePerKg:  &price,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if resp.Status != entity.TripStatusActive || resp.PricePerKg == nil || *resp.PricePerKg != 4.5 {
		t.Fatalf("unexpected trip: %+v", resp)
	}
	if p := env.db.trips[uuid.MustParse(resp.ID)].PricePerKg; p == nil || *p != 450 {
		t.Fatalf("price stored as %v, want 450 cents", p)
	}

	got, err := env.svc.Trip.Get(ctx, resp.ID)
	if err != nil || got.ID != resp.ID {
		t.Fatalf("get: %+v %v", got, err)
	}
	mine, err := env.svc.Trip.ListMine(ctx, traveler, &request.PaginatedRequest{Page: 1, PerPage: 10})
	if err != nil || len(mine) != 1 {
		t.Fatalf("list: %d trips, err=%v", len(mine), err)
	}

	_, err = env.svc.Trip.Create(ctx, traveler, &request.CreateTripRequest{
		Origin: "Lisbon", Destination: "Berlin", DepartureAt: env.now.Add(-time.Hour), CapacityKg: 10,
	})
	assertCode(t, err, utils.CodeValidationFailed)
	_, err = env.svc.Trip.Get(ctx, uuid.NewString())
	assertCode(t, err, utils.CodeNotFound)
}

func TestPayoutAccount_LinkAndProviderUpdate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	carrier := env.user("carrier")

	_, err := env.svc.PayoutAccount.Get(ctx, carrier)
	assertCode(t, err, utils.CodeNotFound)

	env.gw.accounts["acct_new"] = &payment.Account{ID: "acct_new", DetailsSubmitted: true}
	linked, err := env.svc.PayoutAccount.Link(ctx, carrier, &request.LinkPayoutAccountRequest{AccountID: "acct_new"})
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if linked.PaymentCapable {
		t.Fatal("account without charges reported as payment capable")
	}

	if err := env.svc.PayoutAccount.ApplyAccountUpdate(ctx, &payment.Account{ID: "acct_new", ChargesEnabled: true, PayoutsEnabled: true, DetailsSubmitted: true}); err != nil {
		t.Fatalf("apply update: %v", err)
	}
	profile, err := env.svc.User.GetProfile(ctx, carrier)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.PayoutAccount == nil || !profile.PayoutAccount.PaymentCapable {
		t.Fatalf("profile payout account: %+v", profile.PayoutAccount)
	}

	_, err = env.svc.PayoutAccount.Link(ctx, carrier, &request.LinkPayoutAccountRequest{AccountID: "bank-123"})
	assertCode(t, err, utils.CodeValidationFailed)

	env.gw.failNext("account", &payment.ProviderError{Status: 404, Code: "resource_missing"})
	_, err = env.svc.PayoutAccount.Link(ctx, carrier, &request.LinkPayoutAccountRequest{AccountID: "acct_gone"})
	assertCode(t, err, utils.CodePaymentProviderError)
}

func TestWebhook_Dispatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	carrier := env.user("carrier")
	env.payout(carrier.ID, false)
	acctID := env.db.payouts[carrier.ID].ProviderAccountID

	ws := NewWebhookService(env.deps, env.svc.Booking, env.svc.PayoutAccount).(*webhookService)
	var next *payment.WebhookEvent
	ws.parse = func(_ []byte, signature, _ string) (*payment.WebhookEvent, error) {
		if signature != "good" {
			return nil, errors.New("signature mismatch")
		}
		return next, nil
	}

	assertCode(t, ws.Handle(ctx, []byte(`{}`), "forged"), utils.CodeUnauthorized)

	next = &payment.WebhookEvent{ID: "evt_1", Type: "account.updated", Kind: payment.EventAccountUpdated,
		Account: &payment.Account{ID: acctID, ChargesEnabled: true, PayoutsEnabled: true, DetailsSubmitted: true}}
	if err := ws.Handle(ctx, []byte(`{}`), "good"); err != nil {
		t.Fatalf("account update: %v", err)
	}
	if pa := env.db.payouts[carrier.ID]; !pa.PaymentCapable() {
		t.Fatal("capabilities not applied")
	}

	next = &payment.WebhookEvent{ID: "evt_2", Type: "charge.refunded", Kind: payment.EventIgnored}
	if err := ws.Handle(ctx, []byte(`{}`), "good"); err != nil {
		t.Fatalf("ignored event: %v", err)
	}

	// an authorization nobody knows about is acknowledged
	next = &payment.WebhookEvent{ID: "evt_3", Type: "payment_intent.succeeded", Kind: payment.EventAuthorizationUpdate,
		Authorization: &payment.Authorization{ID: "pi_unknown", Status: "succeeded"}}
	if err := ws.Handle(ctx, []byte(`{}`), "good"); err != nil {
		t.Fatalf("unknown authorization: %v", err)
	}
}

type fakePusher struct {
	mu     sync.Mutex
	err    error
	pushed []uuid.UUID
}

func (p *fakePusher) Push(userID uuid.UUID, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.pushed = append(p.pushed, userID)
	return nil
}

func TestNotification_Deliver(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pusher := &fakePusher{}
	deps := env.deps
	deps.Pusher = pusher
	ns := NewNotificationService(deps)
	user := env.user("ana")

	req := NotificationRequest{UserID: user.ID, EventType: "booking.accepted", Vars: NotificationVars{Status: "payment_authorized"}}
	if err := ns.Deliver(ctx, req); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(pusher.pushed) != 1 || env.db.notifications[0].DeliveredAt == nil {
		t.Fatal("online user not reached")
	}
	if got := env.db.notifications[0]; got.Priority != PriorityNormal || len(got.Channels) != 1 || got.Channels[0] != ChannelInApp {
		t.Fatalf("defaults not applied: %+v", got)
	}

	pusher.err = realtime.ErrNoSession
	if err := ns.Deliver(ctx, req); err != nil {
		t.Fatalf("deliver offline: %v", err)
	}
	if env.db.notifications[1].DeliveredAt != nil {
		t.Fatal("offline notification marked delivered")
	}

	pusher.err = nil
	req.Options = NotificationOptions{Channels: []string{ChannelEmail}, Priority: PriorityHigh}
	if err := ns.Deliver(ctx, req); err != nil {
		t.Fatalf("deliver email: %v", err)
	}
	if len(pusher.pushed) != 1 {
		t.Fatal("email-only notification pushed in app")
	}

	list, err := ns.List(ctx, user, &request.PaginatedRequest{Page: 1, PerPage: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Priority != PriorityHigh {
		t.Fatalf("unexpected list: %+v", list)
	}
}
