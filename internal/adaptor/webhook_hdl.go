package adaptor

import (
	"io"
	"net/http"

	"parcel-share/internal/usecase"
	"parcel-share/pkg/utils"

	"go.uber.org/zap"
)

const maxWebhookBody = 64 << 10

type WebhookHandler struct {
	service usecase.WebhookService
	log     *zap.Logger
}

func NewWebhookHandler(service usecase.WebhookService, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		service: service,
		log:     log.With(zap.String("handler", "webhook")),
	}
}

// Stripe handles POST /api/webhooks/stripe. The signature is checked over the raw body.
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := h.service.Handle(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		handleServiceError(w, h.log, err, "handle webhook")
		return
	}

	utils.ResponseSuccess(w, "received", nil)
}
