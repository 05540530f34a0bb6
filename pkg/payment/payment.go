// Package payment is the port to the payment provider: authorizations held
// with manual capture, transfers to connected accounts, account lookups.
package payment

import (
	"context"
	"errors"
	"fmt"
)

type CaptureMode string

const (
	CaptureFull    CaptureMode = "full"
	CapturePartial CaptureMode = "partial"
)

// Authorization mirrors the provider's payment intent.
type Authorization struct {
	ID               string
	Status           string
	Amount           int64
	AmountCapturable int64
	AmountReceived   int64
	Currency         string
	ChargeID         string
}

type Transfer struct {
	ID          string
	Amount      int64
	Currency    string
	Destination string
}

type Refund struct {
	ID       string
	Amount   int64
	Currency string
	Status   string
}

type Account struct {
	ID               string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

type AuthorizationParams struct {
	Amount         int64
	Currency       string
	TransferGroup  string
	Metadata       map[string]string
	IdempotencyKey string
}

type TransferParams struct {
	Amount               int64
	Currency             string
	DestinationAccountID string
	SourceChargeID       string
	TransferGroup        string
	IdempotencyKey       string
}

// Gateway is implemented by the Stripe client and by test fakes.
type Gateway interface {
	CreateAuthorization(ctx context.Context, p AuthorizationParams) (*Authorization, error)
	ConfirmAuthorization(ctx context.Context, id, paymentMethodID, idempotencyKey string) (*Authorization, error)
	// CaptureAuthorization captures amount, or everything capturable when amount is nil.
	CaptureAuthorization(ctx context.Context, id string, amount *int64, idempotencyKey string) (*Authorization, error)
	CancelAuthorization(ctx context.Context, id, reason, idempotencyKey string) (*Authorization, error)
	GetAuthorization(ctx context.Context, id string) (*Authorization, error)
	CreateTransfer(ctx context.Context, p TransferParams) (*Transfer, error)
	// RefundAuthorization returns captured money of the authorization to the payer.
	RefundAuthorization(ctx context.Context, id string, amount int64, idempotencyKey string) (*Refund, error)
	GetAccount(ctx context.Context, id string) (*Account, error)
}

// ProviderError is a definite answer from the provider. Message is for logs only.
type ProviderError struct {
	Status  int
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider error (status %d, code %s): %s", e.Status, e.Code, e.Message)
}

// IsOutcomeUnknown reports whether the side effect of a failed call may still
// have happened: timeouts, transport errors and provider 5xx.
func IsOutcomeUnknown(err error) bool {
	if err == nil {
		return false
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Status == 0 || perr.Status >= 500
	}
	return true
}
