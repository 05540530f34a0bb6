package payment

import (
	"encoding/json"
	"fmt"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
)

type EventKind string

const (
	EventAccountUpdated      EventKind = "account.updated"
	EventAuthorizationUpdate EventKind = "payment_intent"
	EventIgnored             EventKind = "ignored"
)

// WebhookEvent is the part of a provider notification the service reacts to.
type WebhookEvent struct {
	ID            string
	Type          string
	Kind          EventKind
	Account       *Account
	Authorization *Authorization
}

// ParseWebhook verifies the signature header and decodes the events we handle.
func ParseWebhook(payload []byte, signature, secret string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, secret)
	if err != nil {
		return nil, fmt.Errorf("verify webhook signature: %w", err)
	}

	out := &WebhookEvent{ID: event.ID, Type: string(event.Type), Kind: EventIgnored}

	switch string(event.Type) {
	case "account.updated":
		var acct stripe.Account
		if err := json.Unmarshal(event.Data.Raw, &acct); err != nil {
			return nil, fmt.Errorf("decode account: %w", err)
		}
		out.Kind = EventAccountUpdated
		out.Account = &Account{
			ID:               acct.ID,
			ChargesEnabled:   acct.ChargesEnabled,
			PayoutsEnabled:   acct.PayoutsEnabled,
			DetailsSubmitted: acct.DetailsSubmitted,
		}
	case "payment_intent.amount_capturable_updated",
		"payment_intent.succeeded",
		"payment_intent.canceled",
		"payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		out.Kind = EventAuthorizationUpdate
		out.Authorization = toAuthorization(&pi)
	}

	return out, nil
}
