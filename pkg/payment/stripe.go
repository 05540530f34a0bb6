package payment

import (
	"context"
	"errors"
	"net/http"
	"time"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"go.uber.org/zap"
)

// StripeGateway holds funds with PaymentIntents (capture_method=manual) and
// pays carriers with separate transfers to their connected accounts.
type StripeGateway struct {
	api *client.API
	log *zap.Logger
}

// NewStripeGateway builds a client whose HTTP calls never outlive timeout.
func NewStripeGateway(secretKey string, timeout time.Duration, log *zap.Logger) *StripeGateway {
	httpClient := &http.Client{Timeout: timeout}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{HTTPClient: httpClient}),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, &stripe.BackendConfig{HTTPClient: httpClient}),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, &stripe.BackendConfig{HTTPClient: httpClient}),
	}

	return &StripeGateway{
		api: client.New(secretKey, backends),
		log: log.With(zap.String("gateway", "stripe")),
	}
}

func (g *StripeGateway) CreateAuthorization(ctx context.Context, p AuthorizationParams) (*Authorization, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(p.Amount),
		Currency:      stripe.String(p.Currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	if p.TransferGroup != "" {
		params.TransferGroup = stripe.String(p.TransferGroup)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	params.SetIdempotencyKey(p.IdempotencyKey)

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, g.translate("create_authorization", err)
	}
	return toAuthorization(pi), nil
}

func (g *StripeGateway) ConfirmAuthorization(ctx context.Context, id, paymentMethodID, idempotencyKey string) (*Authorization, error) {
	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(paymentMethodID),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	pi, err := g.api.PaymentIntents.Confirm(id, params)
	if err != nil {
		return nil, g.translate("confirm_authorization", err)
	}
	return toAuthorization(pi), nil
}

func (g *StripeGateway) CaptureAuthorization(ctx context.Context, id string, amount *int64, idempotencyKey string) (*Authorization, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	if amount != nil {
		params.AmountToCapture = stripe.Int64(*amount)
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	pi, err := g.api.PaymentIntents.Capture(id, params)
	if err != nil {
		return nil, g.translate("capture_authorization", err)
	}
	return toAuthorization(pi), nil
}

func (g *StripeGateway) CancelAuthorization(ctx context.Context, id, reason, idempotencyKey string) (*Authorization, error) {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(cancellationReason(reason)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	pi, err := g.api.PaymentIntents.Cancel(id, params)
	if err != nil {
		return nil, g.translate("cancel_authorization", err)
	}
	return toAuthorization(pi), nil
}

func (g *StripeGateway) GetAuthorization(ctx context.Context, id string) (*Authorization, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, g.translate("get_authorization", err)
	}
	return toAuthorization(pi), nil
}

func (g *StripeGateway) CreateTransfer(ctx context.Context, p TransferParams) (*Transfer, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(p.Amount),
		Currency:    stripe.String(p.Currency),
		Destination: stripe.String(p.DestinationAccountID),
	}
	if p.SourceChargeID != "" {
		params.SourceTransaction = stripe.String(p.SourceChargeID)
	}
	if p.TransferGroup != "" {
		params.TransferGroup = stripe.String(p.TransferGroup)
	}
	params.Context = ctx
	params.SetIdempotencyKey(p.IdempotencyKey)

	tr, err := g.api.Transfers.New(params)
	if err != nil {
		return nil, g.translate("create_transfer", err)
	}

	out := &Transfer{ID: tr.ID, Amount: tr.Amount, Currency: string(tr.Currency)}
	if tr.Destination != nil {
		out.Destination = tr.Destination.ID
	}
	return out, nil
}

func (g *StripeGateway) RefundAuthorization(ctx context.Context, id string, amount int64, idempotencyKey string) (*Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(id),
		Amount:        stripe.Int64(amount),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	rf, err := g.api.Refunds.New(params)
	if err != nil {
		return nil, g.translate("refund", err)
	}
	return &Refund{ID: rf.ID, Amount: rf.Amount, Currency: string(rf.Currency), Status: string(rf.Status)}, nil
}

func (g *StripeGateway) GetAccount(ctx context.Context, id string) (*Account, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx

	acct, err := g.api.Accounts.GetByID(id, params)
	if err != nil {
		return nil, g.translate("get_account", err)
	}

	return &Account{
		ID:               acct.ID,
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
	}, nil
}

// translate turns a stripe error into *ProviderError; transport failures are
// returned as-is so IsOutcomeUnknown treats them as unknown.
func (g *StripeGateway) translate(op string, err error) error {
	var serr *stripe.Error
	if errors.As(err, &serr) {
		g.log.Warn("Stripe call failed",
			zap.String("operation", op),
			zap.Int("http_status", serr.HTTPStatusCode),
			zap.String("code", string(serr.Code)),
			zap.String("type", string(serr.Type)),
			zap.String("message", serr.Msg),
		)
		return &ProviderError{Status: serr.HTTPStatusCode, Code: string(serr.Code), Message: serr.Msg}
	}

	g.log.Error("Stripe call did not complete", zap.String("operation", op), zap.Error(err))
	return err
}

func toAuthorization(pi *stripe.PaymentIntent) *Authorization {
	a := &Authorization{
		ID:               pi.ID,
		Status:           string(pi.Status),
		Amount:           pi.Amount,
		AmountCapturable: pi.AmountCapturable,
		AmountReceived:   pi.AmountReceived,
		Currency:         string(pi.Currency),
	}
	if pi.LatestCharge != nil {
		a.ChargeID = pi.LatestCharge.ID
	}
	return a
}

func cancellationReason(reason string) string {
	switch reason {
	case "duplicate", "fraudulent", "abandoned":
		return reason
	}
	return "requested_by_customer"
}
