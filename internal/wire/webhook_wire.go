package wire

import (
	"parcel-share/internal/adaptor"

	"github.com/go-chi/chi/v5"
)

func wireWebhook(r chi.Router, webhookHandler *adaptor.WebhookHandler) {
	// Authenticated by the provider signature, not by a session.
	r.Post("/api/webhooks/stripe", webhookHandler.Stripe)
}
