package usecase

import (
	"context"
	"net/http"
	"time"

	"parcel-share/internal/data/entity"
	"parcel-share/pkg/metrics"
	"parcel-share/pkg/payment"
	"parcel-share/pkg/utils"

	"go.uber.org/zap"
)

const defaultProviderTimeout = 15 * time.Second

// PaymentService wraps the provider gateway. Every call has its own deadline and an
// idempotency key derived from (operation, booking, status version), and every
// failure comes back as payment_provider_error or payment_outcome_unknown.
type PaymentService interface {
	CreateAuthorization(ctx context.Context, b *entity.Booking, destinationAccountID string, amount int64) (*payment.Authorization, error)
	ConfirmAuthorization(ctx context.Context, b *entity.Booking, paymentMethodID string) (*payment.Authorization, error)
	CaptureAuthorization(ctx context.Context, b *entity.Booking, mode payment.CaptureMode, amount int64) (*payment.Authorization, error)
	CancelAuthorization(ctx context.Context, b *entity.Booking, reason string) (*payment.Authorization, error)
	TransferToCarrier(ctx context.Context, b *entity.Booking, destinationAccountID string, amount int64, sourceCharge string) (*payment.Transfer, error)
	RefundPayment(ctx context.Context, b *entity.Booking, amount int64) (*payment.Refund, error)
	GetAuthorization(ctx context.Context, authorizationID string) (*payment.Authorization, error)
	GetAccount(ctx context.Context, accountID string) (*payment.Account, error)
}

type paymentService struct {
	gateway payment.Gateway
	timeout time.Duration
	log     *zap.Logger
}

func NewPaymentService(d Deps) PaymentService {
	timeout := d.Config.Stripe.Timeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	return &paymentService{
		gateway: d.Gateway,
		timeout: timeout,
		log:     d.Log.With(zap.String("service", "payment")),
	}
}

func (s *paymentService) CreateAuthorization(ctx context.Context, b *entity.Booking, destinationAccountID string, amount int64) (*payment.Authorization, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	auth, err := s.gateway.CreateAuthorization(ctx, payment.AuthorizationParams{
		Amount:        amount,
		Currency:      b.Currency,
		TransferGroup: transferGroup(b),
		Metadata: map[string]string{
			"booking_id":          b.ID.String(),
			"destination_account": destinationAccountID,
		},
		IdempotencyKey: idempotencyKey("authorize", b),
	})
	return auth, s.done("create_authorization", b, start, err)
}

func (s *paymentService) ConfirmAuthorization(ctx context.Context, b *entity.Booking, paymentMethodID string) (*payment.Authorization, error) {
	if b.PaymentAuthorizationID == nil {
		return nil, errAuthorizationMissing()
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	auth, err := s.gateway.ConfirmAuthorization(ctx, *b.PaymentAuthorizationID, paymentMethodID, idempotencyKey("confirm", b))
	return auth, s.done("confirm_authorization", b, start, err)
}

func (s *paymentService) CaptureAuthorization(ctx context.Context, b *entity.Booking, mode payment.CaptureMode, amount int64) (*payment.Authorization, error) {
	if b.PaymentAuthorizationID == nil {
		return nil, errAuthorizationMissing()
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var toCapture *int64
	if mode == payment.CapturePartial {
		toCapture = &amount
	}

	start := time.Now()
	auth, err := s.gateway.CaptureAuthorization(ctx, *b.PaymentAuthorizationID, toCapture, idempotencyKey("capture_"+string(mode), b))
	return auth, s.done("capture_authorization", b, start, err)
}

func (s *paymentService) CancelAuthorization(ctx context.Context, b *entity.Booking, reason string) (*payment.Authorization, error) {
	if b.PaymentAuthorizationID == nil {
		return nil, errAuthorizationMissing()
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	auth, err := s.gateway.CancelAuthorization(ctx, *b.PaymentAuthorizationID, reason, idempotencyKey("cancel", b))
	return auth, s.done("cancel_authorization", b, start, err)
}

func (s *paymentService) TransferToCarrier(ctx context.Context, b *entity.Booking, destinationAccountID string, amount int64, sourceCharge string) (*payment.Transfer, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	tr, err := s.gateway.CreateTransfer(ctx, payment.TransferParams{
		Amount:               amount,
		Currency:             b.Currency,
		DestinationAccountID: destinationAccountID,
		SourceChargeID:       sourceCharge,
		TransferGroup:        transferGroup(b),
		IdempotencyKey:       idempotencyKey("transfer", b),
	})
	return tr, s.done("transfer", b, start, err)
}

func (s *paymentService) RefundPayment(ctx context.Context, b *entity.Booking, amount int64) (*payment.Refund, error) {
	if b.PaymentAuthorizationID == nil {
		return nil, errAuthorizationMissing()
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	rf, err := s.gateway.RefundAuthorization(ctx, *b.PaymentAuthorizationID, amount, idempotencyKey("refund", b))
	return rf, s.done("refund", b, start, err)
}

func (s *paymentService) GetAuthorization(ctx context.Context, authorizationID string) (*payment.Authorization, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	auth, err := s.gateway.GetAuthorization(ctx, authorizationID)
	return auth, s.done("get_authorization", nil, start, err)
}

func (s *paymentService) GetAccount(ctx context.Context, accountID string) (*payment.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	acct, err := s.gateway.GetAccount(ctx, accountID)
	return acct, s.done("get_account", nil, start, err)
}

// done records the call and turns a gateway error into the uniform AppError shape.
// Provider text stays in the log.
func (s *paymentService) done(op string, b *entity.Booking, start time.Time, err error) error {
	metrics.ProviderLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.ProviderCalls.WithLabelValues(op, "success").Inc()
		return nil
	}

	unknown := payment.IsOutcomeUnknown(err)
	outcome := "failure"
	if unknown {
		outcome = "unknown"
	}
	metrics.ProviderCalls.WithLabelValues(op, outcome).Inc()

	fields := []zap.Field{zap.String("operation", op), zap.Bool("outcome_unknown", unknown), zap.Error(err)}
	if b != nil {
		fields = append(fields, zap.String("booking_id", b.ID.String()), zap.Int("status_version", b.StatusVersion))
	}
	s.log.Error("Payment provider call failed", fields...)

	return utils.ErrProvider(unknown, err)
}

func idempotencyKey(op string, b *entity.Booking) string {
	return utils.GenerateIdempotencyKey(op, b.ID.String(), b.StatusVersion)
}

func transferGroup(b *entity.Booking) string {
	return "booking_" + b.ID.String()
}

func errAuthorizationMissing() *utils.AppError {
	return utils.NewAppError(utils.CodeAuthorizationMissing, http.StatusConflict, "booking has no payment authorization")
}
