package usecase

import (
	"context"

	"parcel-share/pkg/payment"
	"parcel-share/pkg/utils"

	"go.uber.org/zap"
)

// WebhookService applies the provider's asynchronous notifications.
type WebhookService interface {
	Handle(ctx context.Context, payload []byte, signature string) error
}

type webhookService struct {
	secret  string
	parse   func(payload []byte, signature, secret string) (*payment.WebhookEvent, error)
	booking BookingService
	payout  PayoutAccountService
	log     *zap.Logger
}

func NewWebhookService(d Deps, booking BookingService, payout PayoutAccountService) WebhookService {
	return &webhookService{
		secret:  d.Config.Stripe.WebhookSecret,
		parse:   payment.ParseWebhook,
		booking: booking,
		payout:  payout,
		log:     d.Log.With(zap.String("service", "webhook")),
	}
}

func (s *webhookService) Handle(ctx context.Context, payload []byte, signature string) error {
	evt, err := s.parse(payload, signature, s.secret)
	if err != nil {
		s.log.Warn("Rejected webhook", zap.Error(err))
		return utils.ErrUnauthorized("invalid webhook signature")
	}

	log := s.log.With(zap.String("event_id", evt.ID), zap.String("event_type", evt.Type))

	switch evt.Kind {
	case payment.EventAccountUpdated:
		return s.payout.ApplyAccountUpdate(ctx, evt.Account)
	case payment.EventAuthorizationUpdate:
		if err := s.booking.ApplyAuthorizationUpdate(ctx, evt.Authorization); err != nil {
			log.Error("Failed to apply authorization update", zap.Error(err))
			return err
		}
		return nil
	default:
		log.Debug("Ignored webhook event")
		return nil
	}
}
