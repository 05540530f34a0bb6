package usecase

import (
	"context"
	"errors"
	"time"

	"parcel-share/internal/data/repository"
	"parcel-share/pkg/events"
	"parcel-share/pkg/lock"
	"parcel-share/pkg/payment"
	"parcel-share/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobQueue is the background work the services hand off after a commit.
type JobQueue interface {
	EnqueueNotification(ctx context.Context, req NotificationRequest) error
	EnqueueReconciliation(ctx context.Context, req ReconcileRequest) error
	ScheduleSettlement(ctx context.Context, bookingID uuid.UUID, at time.Time) error
}

// Pusher delivers an in-app message to the user's open connections.
type Pusher interface {
	Push(userID uuid.UUID, v any) error
}

type Deps struct {
	Store   repository.Store
	Gateway payment.Gateway
	Locker  lock.Locker
	Events  events.Publisher
	Jobs    JobQueue
	Pusher  Pusher
	Config  *utils.Config
	Log     *zap.Logger
	Now     func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) lockTTL() time.Duration {
	if d.Config == nil || d.Config.Booking.LockTTL <= 0 {
		return 30 * time.Second
	}
	return d.Config.Booking.LockTTL
}

// lockBooking serializes every mutation of one booking across requests and replicas.
// A held lock is reported as a concurrent modification; the caller may retry.
func (d *Deps) lockBooking(ctx context.Context, bookingID uuid.UUID) (lock.Release, error) {
	release, err := d.Locker.Acquire(ctx, "booking:"+bookingID.String(), d.lockTTL())
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil, utils.ErrConcurrent()
	}
	if err != nil {
		return nil, utils.ErrInternal("failed to lock booking", err)
	}
	return release, nil
}

type Service struct {
	Auth          AuthService
	User          UserService
	Trip          TripService
	PayoutAccount PayoutAccountService
	Verification  VerificationService
	Payment       PaymentService
	Escrow        EscrowService
	Cancellation  CancellationService
	Notification  NotificationService
	Booking       BookingService
	Webhook       WebhookService
}

func NewService(d Deps) *Service {
	if d.Events == nil {
		d.Events = events.NopPublisher{}
	}

	verification := NewVerificationService(d)
	pay := NewPaymentService(d)
	escrow := NewEscrowService(d)
	cancellation := NewCancellationService(d)
	payout := NewPayoutAccountService(d)
	booking := NewBookingService(d, verification, pay, escrow, cancellation)

	return &Service{
		Auth:          NewAuthService(d),
		User:          NewUserService(d),
		Trip:          NewTripService(d),
		PayoutAccount: payout,
		Verification:  verification,
		Payment:       pay,
		Escrow:        escrow,
		Cancellation:  cancellation,
		Notification:  NewNotificationService(d),
		Booking:       booking,
		Webhook:       NewWebhookService(d, booking, payout),
	}
}

// Actor is the authenticated caller of a booking operation.
type Actor struct {
	ID    uuid.UUID
	Admin bool
}

// NewActor builds an Actor from the values the auth middleware stores in the request context.
func NewActor(userID, role string) (Actor, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return Actor{}, utils.ErrUnauthorized("invalid user id")
	}
	return Actor{ID: id, Admin: role == "admin"}, nil
}

func parseID(raw, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, utils.ErrValidation(map[string]string{what: "Must be a valid UUID"})
	}
	return id, nil
}

func validate(req any) error {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return utils.ErrValidation(errs)
	}
	return nil
}
