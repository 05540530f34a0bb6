package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"parcel-share/internal/data/entity"
	"parcel-share/internal/data/repository"
	"parcel-share/internal/dto/request"
	"parcel-share/internal/dto/response"
	"parcel-share/pkg/events"
	"parcel-share/pkg/metrics"
	"parcel-share/pkg/payment"
	"parcel-share/pkg/receipt"
	"parcel-share/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Provider statuses of an authorization the lifecycle reacts to.
const (
	authStatusRequiresCapture = "requires_capture"
	authStatusSucceeded       = "succeeded"
	authStatusCanceled        = "canceled"
)

// authStatusRank orders provider statuses so a late webhook never rolls one back.
var authStatusRank = map[string]int{
	"requires_payment_method": 0,
	"requires_confirmation":   1,
	"requires_action":         2,
	"processing":              3,
	authStatusRequiresCapture: 4,
	authStatusSucceeded:       5,
	authStatusCanceled:        5,
}

const (
	ReconcileAuthorize = "authorize"
	ReconcileConfirm   = "confirm"
	ReconcileCapture   = "capture"
	ReconcileCancel    = "cancel"
)

// ReconcileRequest describes a provider call whose outcome was not observed.
// Version and Amount reproduce the original idempotency key and parameters.
type ReconcileRequest struct {
	BookingID            uuid.UUID `json:"booking_id"`
	Operation            string    `json:"operation"`
	AuthorizationID      string    `json:"authorization_id,omitempty"`
	DestinationAccountID string    `json:"destination_account_id,omitempty"`
	Version              int       `json:"version"`
	Amount               int64     `json:"amount"`
}

type BookingService interface {
	Create(ctx context.Context, actor Actor, req *request.CreateBookingRequest) (*response.BookingResponse, error)
	Get(ctx context.Context, actor Actor, bookingID string) (*response.BookingResponse, error)
	ListMine(ctx context.Context, actor Actor, req *request.PaginatedRequest) (*response.PaginatedResponse[response.BookingResponse], error)

	Accept(ctx context.Context, actor Actor, bookingID string, req *request.AcceptBookingRequest) (*response.BookingResponse, error)
	Reject(ctx context.Context, actor Actor, bookingID string, req *request.RejectBookingRequest) (*response.BookingResponse, error)
	ConfirmPayment(ctx context.Context, actor Actor, bookingID string, req *request.ConfirmPaymentRequest) (*response.BookingResponse, error)
	Capture(ctx context.Context, actor Actor, bookingID string) (*response.BookingResponse, error)
	ValidatePickup(ctx context.Context, actor Actor, bookingID string, req *request.ValidateCodeRequest) (*response.BookingResponse, error)
	ValidateDelivery(ctx context.Context, actor Actor, bookingID string, req *request.ValidateCodeRequest) (*response.BookingResponse, error)
	Cancel(ctx context.Context, actor Actor, bookingID string, req *request.CancelBookingRequest) (*response.BookingResponse, error)
	NoShow(ctx context.Context, actor Actor, bookingID string) (*response.BookingResponse, error)
	OpenDispute(ctx context.Context, actor Actor, bookingID string, req *request.DisputeRequest) (*response.BookingResponse, error)
	ResolveDispute(ctx context.Context, actor Actor, bookingID string, req *request.ResolveDisputeRequest) (*response.PaymentStatusResponse, error)
	ForceTransfer(ctx context.Context, actor Actor, bookingID string) (*response.BookingResponse, error)

	PaymentStatus(ctx context.Context, actor Actor, bookingID string) (*response.PaymentStatusResponse, error)
	Receipt(ctx context.Context, actor Actor, bookingID string) ([]byte, string, error)

	// Settle pays out a delivered booking; it is a no-op for any other status.
	Settle(ctx context.Context, bookingID uuid.UUID) error
	Reconcile(ctx context.Context, req ReconcileRequest) error
	// ApplyAuthorizationUpdate syncs a booking with the provider's view of its authorization.
	ApplyAuthorizationUpdate(ctx context.Context, auth *payment.Authorization) error
}

type bookingService struct {
	deps         Deps
	store        repository.Store
	cfg          utils.BookingConfig
	verification VerificationService
	payment      PaymentService
	escrow       EscrowService
	cancellation CancellationService
	jobs         JobQueue
	events       events.Publisher
	log          *zap.Logger
}

func NewBookingService(d Deps, verification VerificationService, pay PaymentService, escrow EscrowService, cancellation CancellationService) BookingService {
	publisher := d.Events
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &bookingService{
		deps:         d,
		store:        d.Store,
		cfg:          d.Config.Booking,
		verification: verification,
		payment:      pay,
		escrow:       escrow,
		cancellation: cancellation,
		jobs:         d.Jobs,
		events:       publisher,
		log:          d.Log.With(zap.String("service", "booking")),
	}
}

// ==================== QUERIES ====================

func (s *bookingService) Create(ctx context.Context, actor Actor, req *request.CreateBookingRequest) (*response.BookingResponse, error) {
	// 1. Validasi input
	if err := validate(req); err != nil {
		return nil, err
	}
	tripID, err := parseID(req.TripID, "trip_id")
	if err != nil {
		return nil, err
	}

	// 2. Trip must still take requests
	repo := s.store.Repo()
	trip, err := repo.Trip.FindByID(ctx, tripID)
	if err != nil {
		return nil, utils.ErrInternal("failed to get trip", err)
	}
	if trip == nil {
		return nil, utils.ErrNotFound("trip")
	}
	now := s.deps.now()
	if !trip.AcceptsBookings(now) {
		return nil, utils.NewAppError(utils.CodeTripUnavailable, http.StatusConflict, "trip no longer accepts booking requests")
	}
	if trip.TravelerID == actor.ID {
		return nil, utils.ErrForbidden("you cannot book your own trip")
	}
	if req.WeightKg > trip.CapacityKg {
		return nil, utils.ErrValidation(map[string]string{"WeightKg": fmt.Sprintf("Trip capacity is %.2f kg", trip.CapacityKg)})
	}

	// 3. Build booking
	b := &entity.Booking{
		Base: entity.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		TripID:        trip.ID,
		SenderID:      actor.ID,
		ReceiverID:    trip.TravelerID,
		WeightKg:      req.WeightKg,
		Description:   req.Description,
		ProposedPrice: utils.ToCents(req.ProposedPrice),
		Currency:      s.cfg.Currency,
		Status:        entity.BookingStatusPending,
		StatusVersion: 1,
	}

	// 4. Save with its first history row
	err = s.store.WithinTx(ctx, func(repo *repository.Repository) error {
		if err := repo.Booking.Create(ctx, b); err != nil {
			return err
		}
		return repo.Booking.AppendEvent(ctx, &entity.BookingEvent{
			BaseSimple: entity.BaseSimple{ID: uuid.New(), CreatedAt: now},
			BookingID:  b.ID,
			Action:     entity.ActionCreate,
			ToStatus:   entity.BookingStatusPending,
			ActorID:    &actor.ID,
			ActorRole:  entity.ActorSender,
		})
	})
	if err != nil {
		return nil, utils.ErrInternal("failed to create booking", err)
	}

	s.log.Info("Booking requested",
		zap.String("booking_id", b.ID.String()),
		zap.Int64("reference", b.Reference),
		zap.String("trip_id", trip.ID.String()),
	)
	s.publish(ctx, b, "", entity.ActionCreate, &actor.ID, entity.ActorSender)
	s.notify(ctx, b.ReceiverID, "booking.requested", b, "You have a new booking request", PriorityNormal)

	resp := response.BookingToResponse(b)
	return &resp, nil
}

func (s *bookingService) Get(ctx context.Context, actor Actor, bookingID string) (*response.BookingResponse, error) {
	b, err := s.loadVisible(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	resp := response.BookingToResponse(b)
	return &resp, nil
}

func (s *bookingService) ListMine(ctx context.Context, actor Actor, req *request.PaginatedRequest) (*response.PaginatedResponse[response.BookingResponse], error) {
	repo := s.store.Repo()

	bookings, err := repo.Booking.FindByParty(ctx, actor.ID, req.Limit(), req.Offset())
	if err != nil {
		return nil, utils.ErrInternal("failed to get bookings", err)
	}
	total, err := repo.Booking.CountByParty(ctx, actor.ID)
	if err != nil {
		return nil, utils.ErrInternal("failed to get bookings", err)
	}

	data := make([]response.BookingResponse, 0, len(bookings))
	for _, b := range bookings {
		data = append(data, response.BookingToResponse(b))
	}
	return response.NewPaginatedResponse(data, req.Page, req.Limit(), total), nil
}

func (s *bookingService) PaymentStatus(ctx context.Context, actor Actor, bookingID string) (*response.PaymentStatusResponse, error) {
	b, err := s.loadVisible(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	return s.paymentStatus(ctx, b)
}

func (s *bookingService) paymentStatus(ctx context.Context, b *entity.Booking) (*response.PaymentStatusResponse, error) {
	repo := s.store.Repo()

	escrow, err := repo.Escrow.FindByBookingID(ctx, b.ID)
	if err != nil {
		return nil, utils.ErrInternal("failed to get escrow", err)
	}
	txns, err := repo.Transaction.FindByBookingID(ctx, b.ID)
	if err != nil {
		return nil, utils.ErrInternal("failed to get transactions", err)
	}

	resp := &response.PaymentStatusResponse{
		BookingID:              b.ID.String(),
		Status:                 b.Status,
		PaymentAuthorizationID: b.PaymentAuthorizationID,
		PaymentStatus:          b.PaymentStatus,
		Escrow:                 response.EscrowToResponse(escrow),
		Transactions:           make([]response.TransactionResponse, 0, len(txns)),
	}
	for _, t := range txns {
		resp.Transactions = append(resp.Transactions, response.TransactionResponse{
			ID:                t.ID.String(),
			Type:              t.Type,
			Amount:            utils.FromCents(t.Amount),
			Currency:          t.Currency,
			ProviderReference: t.ProviderReference,
			CreatedAt:         t.CreatedAt,
		})
	}
	return resp, nil
}

// Receipt renders the statement of a booking whose payment was captured.
func (s *bookingService) Receipt(ctx context.Context, actor Actor, bookingID string) ([]byte, string, error) {
	b, err := s.loadVisible(ctx, actor, bookingID)
	if err != nil {
		return nil, "", err
	}
	if !b.Status.AtLeast(entity.BookingStatusPaid) {
		return nil, "", utils.ErrInvalidTransition(string(b.Status), "print a receipt for")
	}

	repo := s.store.Repo()
	trip, err := repo.Trip.FindByID(ctx, b.TripID)
	if err != nil || trip == nil {
		return nil, "", utils.ErrInternal("failed to get trip", err)
	}
	sender, err := repo.User.FindByID(ctx, b.SenderID)
	if err != nil {
		return nil, "", utils.ErrInternal("failed to get sender", err)
	}
	carrier, err := repo.User.FindByID(ctx, b.ReceiverID)
	if err != nil {
		return nil, "", utils.ErrInternal("failed to get carrier", err)
	}
	txns, err := repo.Transaction.FindByBookingID(ctx, b.ID)
	if err != nil {
		return nil, "", utils.ErrInternal("failed to get transactions", err)
	}

	now := s.deps.now()
	st := receipt.Statement{
		Number:    utils.GenerateReceiptNumber(b.Reference, now),
		Reference: b.Reference,
		IssuedAt:  now,
		Status:    string(b.Status),
		Route:     trip.Origin + " - " + trip.Destination,
		WeightKg:  b.WeightKg,
		Currency:  b.Currency,
		Lines: []receipt.Line{
			{Label: "Agreed price", Amount: principalOf(b)},
			{Label: fmt.Sprintf("Platform commission (%.2f%%)", b.CommissionRate), Amount: -b.CommissionAmount},
			{Label: "Carrier payout", Amount: b.TransferAmount()},
		},
	}
	if sender != nil {
		st.Sender = sender.Username
	}
	if carrier != nil {
		st.Carrier = carrier.Username
	}
	for _, t := range txns {
		st.Transactions = append(st.Transactions, fmt.Sprintf("%s  %-16s %s",
			t.CreatedAt.Format("2006-01-02 15:04"), t.Type, receipt.FormatAmount(t.Amount, t.Currency)))
	}

	pdf, err := receipt.Render(st)
	if err != nil {
		return nil, "", utils.ErrInternal("failed to render receipt", err)
	}
	return pdf, st.Number + ".pdf", nil
}

// ==================== TRANSITIONS ====================

func (s *bookingService) Accept(ctx context.Context, actor Actor, bookingID string, req *request.AcceptBookingRequest) (*response.BookingResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	return s.withLock(ctx, bookingID, func(b *entity.Booking) (*entity.Booking, error) {
		// 1. Guard
		role, err := roleFor(b, actor, entity.ActionAccept)
		if err != nil {
			return nil, err
		}
		if err := s.guard(b, entity.ActionAccept, role); err != nil {
			return nil, err
		}

		// 2. The carrier must be able to receive money
		acct, err := s.store.Repo().PayoutAccount.FindByUserID(ctx, b.ReceiverID)
		if err != nil {
			return nil, utils.ErrInternal("failed to check payout account", err)
		}
		if !acct.PaymentCapable() {
			return nil, s.reject(entity.ActionAccept, utils.NewAppError(utils.CodeStripeAccountRequired, http.StatusUnprocessableEntity,
				"link a payment-capable payout account before accepting bookings"))
		}

		// 3. Price and commission are fixed once, here
		final := b.ProposedPrice
		if req.FinalPrice != nil {
			final = utils.ToCents(*req.FinalPrice)
		}
		rate := s.cfg.CommissionRate

		accepted, err := s.commit(ctx, b, entity.ActionAccept, &actor.ID, role, func(n *entity.Booking) {
			n.FinalPrice = &final
			n.CommissionRate = rate
			n.CommissionAmount = utils.PercentOf(final, rate)
		}, nil)
		if err != nil {
			return nil, err
		}

		// 4. Hold the money; on any failure the booking goes back to pending
		auth, err := s.payment.CreateAuthorization(ctx, accepted, acct.ProviderAccountID, final)
		if err != nil {
			if utils.HasCode(err, utils.CodePaymentOutcomeUnknown) {
				s.enqueueReconcile(ctx, ReconcileRequest{
					BookingID:            accepted.ID,
					Operation:            ReconcileAuthorize,
					DestinationAccountID: acct.ProviderAccountID,
					Version:              accepted.StatusVersion,
					Amount:               final,
				})
			}
			s.revertAccept(ctx, accepted)
			return nil, err
		}

		// 5. Record the hold
		authorized, err := s.commit(ctx, accepted, entity.ActionAuthorize, nil, entity.ActorSystem, func(n *entity.Booking) {
			n.PaymentAuthorizationID = &auth.ID
			n.PaymentStatus = &auth.Status
		}, nil)
		if err != nil {
			orphan := *accepted
			orphan.PaymentAuthorizationID = &auth.ID
			if _, cerr := s.payment.CancelAuthorization(ctx, &orphan, "abandoned"); cerr != nil {
				s.log.Error("Failed to release unrecorded authorization",
					zap.String("booking_id", b.ID.String()),
					zap.String("authorization_id", auth.ID),
					zap.Error(cerr),
				)
			}
			s.revertAccept(ctx, accepted)
			return nil, err
		}

		s.notify(ctx, authorized.SenderID, "booking.accepted", authorized, "Your booking was accepted, confirm the payment to continue", PriorityNormal)
		return authorized, nil
	})
}

// revertAccept is the compensation of a failed accept. A failure here leaves the
// booking accepted without authorization, which reconciliation reverts later.
func (s *bookingService) revertAccept(ctx context.Context, accepted *entity.Booking) {
	_, err := s.commit(ctx, accepted, entity.ActionRevertAccept, nil, entity.ActorSystem, func(n *entity.Booking) {
		n.FinalPrice = nil
		n.CommissionRate = 0
		n.CommissionAmount = 0
		n.PaymentAuthorizationID = nil
		n.PaymentStatus = nil
	}, nil)
	if err != nil {
		s.log.Error("Failed to revert accepted booking",
			zap.String("booking_id", accepted.ID.String()),
			zap.Error(err),
		)
		s.enqueueReconcile(ctx, ReconcileRequest{
			BookingID: accepted.ID,
			Operation: ReconcileAuthorize,
			Version:   accepted.StatusVersion,
		})
	}
}

func (s *bookingService) Reject(ctx context.Context, actor Actor, bookingID string, req *request.RejectBookingRequest) (*response.BookingResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	return s.withLock(ctx, bookingID, func(b *entity.Booking) (*entity.Booking, error) {
		role, err := roleFor(b, actor, entity.ActionReject)
		if err != nil {
			return nil, err
		}
		if err := s.guard(b, entity.ActionReject, role); err != nil {
			return nil, err
		}

		rejected, err := s.commit(ctx, b, entity.ActionReject, &actor.ID, role, func(n *entity.Booking) {
			if req.Reason != "" {
				reason := req.Reason
				n.RejectionReason = &reason
			}
		}, nil)
		if err != nil {
			return nil, err
		}

		s.notify(ctx, rejected.SenderID, "booking.rejected", rejected, "Your booking request was declined", PriorityNormal)
		return rejected, nil
	})
}

func (s *bookingService) ConfirmPayment(ctx context.Context, actor Actor, bookingID string, req *request.ConfirmPaymentRequest) (*response.BookingResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	return s.withLock(ctx, bookingID, func(b *entity.Booking) (*entity.Booking, error) {
		role, err := roleFor(b, actor, entity.ActionConfirmPayment)
		if err != nil {
			return nil, err
		}
		if err := s.guard(b, entity.ActionConfirmPayment, role); err != nil {
			return nil, err
		}
		if b.PaymentAuthorizationID == nil {
			return nil, s.reject(entity.ActionConfirmPayment, errAuthorizationMissing())
		}

		auth, err := s.payment.ConfirmAuthorization(ctx, b, req.PaymentMethodID)
		if err != nil {
			if utils.HasCode(err, utils.CodePaymentOutcomeUnknown) {
				s.enqueueReconcile(ctx, ReconcileRequest{
					BookingID:       b.ID,
					Operation:       ReconcileConfirm,
					AuthorizationID: *b.PaymentAuthorizationID,
					Version:         b.StatusVersion,
				})
			}
			return nil, err
		}

		// Anything short of requires_capture (e.g. a pending 3-D Secure step) waits for the webhook.
		if auth.Status != authStatusRequiresCapture {
			return s.syncPaymentStatus(ctx, b, auth)
		}

		confirmed, err := s.commit(ctx, b, entity.ActionConfirmPayment, &actor.ID, role, func(n *entity.Booking) {
			n.PaymentStatus = &auth.Status
		}, nil)
		if err != nil {
			s.enqueueReconcile(ctx, ReconcileRequest{
				BookingID:       b.ID,
				Operation:       ReconcileConfirm,
				AuthorizationID: auth.ID,
				Version:         b.StatusVersion,
			})
			return nil, err
		}

		return s.afterConfirm(ctx, confirmed), nil
	})
}

// afterConfirm notifies the carrier and, when enabled, captures right away as the system.
// A failed automatic capture leaves the booking confirmed for a manual capture.
func (s *bookingService) afterConfirm(ctx context.Context, confirmed *entity.Booking) *entity.Booking {
	s.notify(ctx, confirmed.ReceiverID, "booking.payment_confirmed", confirmed, "The sender confirmed the payment", PriorityNormal)
	if !s.cfg.AutoCapture {
		return confirmed
	}

	paid, err := s.capture(ctx, confirmed, nil, entity.ActorSystem)
	if err != nil {
		s.log.Warn("Automatic capture failed, booking stays confirmed",
			zap.String("booking_id", confirmed.ID.String()),
			zap.Error(err),
		)
		return confirmed
	}
	return paid
}

func (s *bookingService) Capture(ctx context.Context, actor Actor, bookingID string) (*response.BookingResponse, error) {
	return s.withLock(ctx, bookingID, func(b *entity.Booking) (*entity.Booking, error) {
		role, err := roleFor(b, actor, entity.ActionCapture)
		if err != nil {
			return nil, err
		}
		return s.capture(ctx, b, &actor.ID, role)
	})
}

func (s *bookingService) capture(ctx context.Context, b *entity.Booking, actorID *uuid.UUID, role entity.ActorRole) (*entity.Booking, error) {
	if err := s.guard(b, entity.ActionCapture, role); err != nil {
		return nil, err
	}
	if b.PaymentAuthorizationID == nil {
		return nil, s.reject(entity.ActionCapture, errAuthorizationMissing())
	}

	auth, err := s.payment.CaptureAuthorization(ctx, b, payment.CaptureFull, 0)
	if err != nil {
		if utils.HasCode(err, utils.CodePaymentOutcomeUnknown) {
			s.enqueueReconcile(ctx, ReconcileRequest{
				BookingID:       b.ID,
				Operation:       ReconcileCapture,
				AuthorizationID: *b.PaymentAuthorizationID,
				Version:         b.StatusVersion,
			})
		}
		return nil, err
	}

	return s.finishCapture(ctx, b, auth, actorID, role)
}

// finishCapture records a capture the provider already made: the capture row, the
// escrow hold and both custody codes land in one transaction with the status change.
func (s *bookingService) finishCapture(ctx context.Context, b *entity.Booking, auth *payment.Authorization, actorID *uuid.UUID, role entity.ActorRole) (*entity.Booking, error) {
	amount := auth.AmountReceived
	if amount == 0 && b.FinalPrice != nil {
		amount = *b.FinalPrice
	}

	paid, err := s.commit(ctx, b, entity.ActionCapture, actorID, role, func(n *entity.Booking) {
		n.PaymentStatus = &auth.Status
	}, func(repo *repository.Repository, n *entity.Booking) error {
		txn := &entity.Transaction{
			BaseSimple: entity.BaseSimple{ID: uuid.New(), CreatedAt: n.UpdatedAt},
			BookingID:  n.ID,
			Type:       entity.TransactionTypeCapture,
			Amount:     amount,
			Currency:   n.Currency,
		}
		if auth.ChargeID != "" {
			charge := auth.ChargeID
			txn.ProviderReference = &charge
		}
		if err := repo.Transaction.Create(ctx, txn); err != nil {
			return err
		}

		if _, err := s.escrow.Hold(ctx, repo, txn.ID, n.ID, amount, n.Currency, "awaiting delivery confirmation"); err != nil {
			return err
		}

		if _, err := s.verification.GenerateWith(ctx, repo, holderOf(n, entity.CodeTypePickup), entity.CodeTypePickup, n.ID); err != nil {
			return err
		}
		_, err := s.verification.GenerateWith(ctx, repo, holderOf(n, entity.CodeTypeDelivery), entity.CodeTypeDelivery, n.ID)
		return err
	})
	if err != nil {
		// The money is captured at the provider; reconciliation records it.
		s.log.Error("Captured payment could not be recorded",
			zap.String("booking_id", b.ID.String()),
			zap.String("authorization_id", auth.ID),
			zap.Error(err),
		)
		s.enqueueReconcile(ctx, ReconcileRequest{
			BookingID:       b.ID,
			Operation:       ReconcileCapture,
			AuthorizationID: auth.ID,
			Version:         b.StatusVersion,
		})
		return nil, err
	}

	s.notify(ctx, paid.SenderID, "booking.paid", paid, "Payment captured, your pickup code is ready", PriorityNormal)
	s.notify(ctx, paid.ReceiverID, "booking.paid", paid, "Payment captured, your delivery code is ready", PriorityNormal)
	return paid, nil
}

func (s *bookingService) ValidatePickup(ctx context.Context, actor Actor, bookingID string, req *request.ValidateCodeRequest) (*response.BookingResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	return s.withLock(ctx, bookingID, func(b *entity.Booking) (*entity.Booking, error) {
		role, err := roleFor(b, actor, entity.ActionValidatePickup)
		if err != nil {
			return nil, err
		}
		if err := s.guard(b, entity.ActionValidatePickup, role); err != nil {
			return nil, err
		}

		vc, err := s.verification.Verify(ctx, req.Code, entity.CodeTypePickup, b.ID)
		if err != nil {
			return nil, s.reject(entity.ActionValidatePickup, err)
		}

		now := s.deps.now()
		inTransit, err := s.commit(ctx, b, entity.ActionValidatePickup, &actor.ID, role, func(n *entity.Booking) {
			n.PickupDate = &now
		}, func(repo *repository.Repository, n *entity.Booking) error {
			if err := s.verification.MarkUsed(ctx, repo, vc.ID); err != nil {
				return err
			}
			// The first pickup puts the trip on the road.
			_, err := repo.Trip.UpdateStatus(ctx, n.TripID, entity.TripStatusActive, entity.TripStatusInProgress)
			return err
		})
		if err != nil {
			return nil, err
		}

		s.notify(ctx, inTransit.SenderID, "booking.in_transit", inTransit, "Your parcel was picked up", PriorityNormal)
		return inTransit, nil
	})
}

func (s *bookingService) ValidateDelivery(ctx context.Context, actor Actor, bookingID string, req *request.ValidateCodeRequest) (*response.BookingResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	return s.withLock(ctx, bookingID, func(b *entity.Booking) (*entity.Booking, error) {
		role, err := roleFor(b, actor, entity.ActionValidateDelivery)
		if err != nil {
			return nil, err
		}
		if err := s.guard(b, entity.ActionValidateDelivery, role); err != nil {
			return nil, err
		}

		vc, err := s.verification.Verify(ctx, req.Code, entity.CodeTypeDelivery, b.ID)
		if err != nil {
			return nil, s.reject(entity.ActionValidateDelivery, err)
		}

		now := s.deps.now()
		delivered, err := s.commit(ctx, b, entity.ActionValidateDelivery, &actor.ID, role, func(n *entity.Booking) {
			n.DeliveryConfirmedAt = &now
		}, func(repo *repository.Repository, n *entity.Booking) error {
			return s.verification.MarkUsed(ctx, repo, vc.ID)
		})
		if err != nil {
			return nil, err
		}

		s.notify(ctx, delivered.ReceiverID, "booking.delivered", delivered, "Delivery confirmed by the sender", PriorityNormal)

		if s.cfg.DisputeWindow > 0 {
			s.scheduleSettlement(ctx, delivered.ID, now.Add(s.cfg.DisputeWindow))
			return delivered, nil
		}

		// Delivery stands even when the payout fails; the settlement job retries it.
		completed, err := s.settle(ctx, delivered, nil, entity.ActorSystem)
		if err != nil {
			s.log.Warn("Inline settlement failed, scheduling retry",
				zap.String("booking_id", delivered.ID.String()),
				zap.Error(err),
			)
			s.scheduleSettlement(ctx, delivered.ID, now)
			return delivered, nil
		}
		return completed, nil
	})
}

func (s *bookingService) Settle(ctx context.Context, bookingID uuid.UUID) error {
	_, err := s.withLockEntity(ctx, bookingID.String(), func(b *entity.Booking) (*entity.Booking, error) {
		if b.Status != entity.BookingStatusDelivered {
			s.log.Info("Settlement skipped",
				zap.String("booking_id", b.ID.String()),
				zap.String("status", string(b.Status)),
			)
			return b, nil
		}
		return s.settle(ctx, b, nil, entity.ActorSystem)
	})
	return err
}

func (s *bookingService) ForceTransfer(ctx context.Context, actor Actor, bookingID string) (*response.BookingResponse, error) {
	return s.withLock(ctx, bookingID, func(b *entity.Booking) (*entity.Booking, error) {
		if !actor.Admin {
			return nil, utils.ErrForbidden("admin only")
		}
		s.log.Info("Forced transfer requested",
			zap.String("booking_id", b.ID.String()),
			zap.String("admin_id", actor.ID.String()),
		)
		return s.settle(ctx, b, &actor.ID, entity.ActorAdmin)
	})
}

// settle transfers the carrier's share and then, in one transaction, releases the
// escrow, records the transfer and completes the booking (and the trip when it was
// the last open booking). A failed commit is retried with the same idempotency key.
func (s *bookingService) settle(ctx context.Context, b *entity.Booking, actorID *uuid.UUID, role entity.ActorRole) (*entity.Booking, error) {
	if err := s.guard(b, entity.ActionSettle, role); err != nil {
		return nil, err
	}

	escrow, tr, err := s.payout(ctx, b)
	if err != nil {
		return nil, err
	}

	now := s.deps.now()
	completed, err := s.commit(ctx, b, entity.ActionSettle, actorID, role, func(n *entity.Booking) {
		n.CompletedAt = &now
	}, func(repo *repository.Repository, n *entity.Booking) error {
		if err := s.recordPayout(ctx, repo, n, escrow, tr, "delivery confirmed"); err != nil {
			return err
		}

		open, err := repo.Booking.CountOpenByTrip(ctx, n.TripID)
		if err != nil {
			return err
		}
		if open == 0 {
			if _, err := repo.Trip.UpdateStatus(ctx, n.TripID, entity.TripStatusInProgress, entity.TripStatusCompleted); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, completed.ReceiverID, "booking.completed", completed, "Your payout is on its way", PriorityNormal)
	s.notify(ctx, completed.SenderID, "booking.completed", completed, "Your booking is complete", PriorityNormal)
	return completed, nil
}

// payout checks the escrow and the carrier account, then makes the provider transfer.
func (s *bookingService) payout(ctx context.Context, b *entity.Booking) (*entity.EscrowAccount, *payment.Transfer, error) {
	repo := s.store.Repo()

	escrow, err := repo.Escrow.FindByBookingID(ctx, b.ID)
	if err != nil {
		return nil, nil, utils.ErrInternal("failed to get escrow", err)
	}
	if escrow == nil {
		return nil, nil, errEscrowNotFound()
	}
	if !escrow.IsHolding() {
		return nil, nil, errEscrowNotHolding(escrow.Status)
	}

	acct, err := repo.PayoutAccount.FindByUserID(ctx, b.ReceiverID)
	if err != nil {
		return nil, nil, utils.ErrInternal("failed to check payout account", err)
	}
	if !acct.PaymentCapable() {
		return nil, nil, utils.NewAppError(utils.CodeStripeAccountRequired, http.StatusUnprocessableEntity, "carrier payout account cannot receive transfers")
	}

	txns, err := repo.Transaction.FindByBookingID(ctx, b.ID)
	if err != nil {
		return nil, nil, utils.ErrInternal("failed to get transactions", err)
	}
	var sourceCharge string
	for _, t := range txns {
		if t.Type == entity.TransactionTypeCapture && t.ProviderReference != nil {
			sourceCharge = *t.ProviderReference
		}
	}

	tr, err := s.payment.TransferToCarrier(ctx, b, acct.ProviderAccountID, b.TransferAmount(), sourceCharge)
	if err != nil {
		return nil, nil, err
	}
	return escrow, tr, nil
}

func (s *bookingService) recordPayout(ctx context.Context, repo *repository.Repository, b *entity.Booking, escrow *entity.EscrowAccount, tr *payment.Transfer, notes string) error {
	if _, err := s.escrow.Release(ctx, repo, escrow.ID, notes); err != nil {
		return err
	}
	ref := tr.ID
	eid := escrow.ID
	return repo.Transaction.Create(ctx, &entity.Transaction{
		BaseSimple:        entity.BaseSimple{ID: uuid.New(), CreatedAt: s.deps.now()},
		BookingID:         b.ID,
		EscrowID:          &eid,
		Type:              entity.TransactionTypeTransfer,
		Amount:            tr.Amount,
		Currency:          b.Currency,
		ProviderReference: &ref,
	})
}

func (s *bookingService) Cancel(ctx context.Context, actor Actor, bookingID string, req *request.CancelBookingRequest) (*response.BookingResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	return s.withLock(ctx, bookingID, func(b *entity.Booking) (*entity.Booking, error) {
		return s.cancelWithPolicy(ctx, b, actor, entity.ActionCancel, req.Reason)
	})
}

func (s *bookingService) NoShow(ctx context.Context, actor Actor, bookingID string) (*response.BookingResponse, error) {
	return s.withLock(ctx, bookingID, func(b *entity.Booking) (*entity.Booking, error) {
		return s.cancelWithPolicy(ctx, b, actor, entity.ActionNoShow, "sender did not show up")
	})
}

// cancelWithPolicy runs the cancellation policy; denied attempts are recorded on their
// own, allowed ones inside the transition.
func (s *bookingService) cancelWithPolicy(ctx context.Context, b *entity.Booking, actor Actor, action entity.BookingAction, reason string) (*entity.Booking, error) {
	role, err := roleFor(b, actor, action)
	if err != nil {
		return nil, err
	}

	repo := s.store.Repo()
	d, err := s.cancellation.Evaluate(ctx, repo, b, action, actor.ID, role)
	if err != nil {
		return nil, utils.ErrInternal("failed to evaluate cancellation", err)
	}
	if !d.Allowed {
		if err := s.cancellation.Record(ctx, repo, b, actor.ID, d); err != nil {
			s.log.Error("Failed to record denied cancellation", zap.String("booking_id", b.ID.String()), zap.Error(err))
		}
		return nil, s.reject(action, utils.NewAppError(utils.CodeCancellationNotAllowed, http.StatusUnprocessableEntity, "this booking cannot be cancelled").
			WithDetail("denial_reason", d.DenialReason).
			WithDetail("cancellation_type", d.Type))
	}

	principal := principalOf(b)
	retained := principal - d.RefundAmount(principal)

	// Provider side first: release the hold, or keep only the retained part.
	var auth *payment.Authorization
	var penalty int64
	switch b.Status {
	case entity.BookingStatusPaymentAuthorized:
		auth, err = s.payment.CancelAuthorization(ctx, b, reason)
	case entity.BookingStatusPaymentConfirmed:
		if retained > 0 {
			penalty = retained
			auth, err = s.payment.CaptureAuthorization(ctx, b, payment.CapturePartial, retained)
		} else {
			auth, err = s.payment.CancelAuthorization(ctx, b, reason)
		}
	}
	if err != nil {
		if utils.HasCode(err, utils.CodePaymentOutcomeUnknown) {
			s.enqueueReconcile(ctx, ReconcileRequest{
				BookingID:       b.ID,
				Operation:       ReconcileCancel,
				AuthorizationID: *b.PaymentAuthorizationID,
				Version:         b.StatusVersion,
			})
		}
		return nil, err
	}

	now := s.deps.now()
	cancelled, err := s.commit(ctx, b, action, &actor.ID, role, func(n *entity.Booking) {
		ct := d.Type
		pct := d.RefundPercent
		n.CancellationType = &ct
		n.RefundPercent = &pct
		n.CancelledAt = &now
		if auth != nil {
			n.PaymentStatus = &auth.Status
		}
	}, func(repo *repository.Repository, n *entity.Booking) error {
		if err := s.cancellation.Record(ctx, repo, n, actor.ID, d); err != nil {
			return err
		}
		if penalty == 0 {
			return nil
		}
		txn := &entity.Transaction{
			BaseSimple: entity.BaseSimple{ID: uuid.New(), CreatedAt: now},
			BookingID:  n.ID,
			Type:       entity.TransactionTypePenaltyCapture,
			Amount:     penalty,
			Currency:   n.Currency,
		}
		if auth.ChargeID != "" {
			charge := auth.ChargeID
			txn.ProviderReference = &charge
		}
		return repo.Transaction.Create(ctx, txn)
	})
	if err != nil {
		// Retrying the same call replays the provider result from its idempotency key.
		return nil, err
	}

	other := cancelled.ReceiverID
	if actor.ID == cancelled.ReceiverID {
		other = cancelled.SenderID
	}
	s.notify(ctx, other, "booking.cancelled", cancelled, "The booking was cancelled", PriorityNormal)
	return cancelled, nil
}

func (s *bookingService) OpenDispute(ctx context.Context, actor Actor, bookingID string, req *request.DisputeRequest) (*response.BookingResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	return s.withLock(ctx, bookingID, func(b *entity.Booking) (*entity.Booking, error) {
		role, err := roleFor(b, actor, entity.ActionOpenDispute)
		if err != nil {
			return nil, err
		}
		if err := s.guard(b, entity.ActionOpenDispute, role); err != nil {
			return nil, err
		}

		// The escrow stays holding; a disputed booking is never settled automatically.
		disputed, err := s.commit(ctx, b, entity.ActionOpenDispute, &actor.ID, role, nil, nil)
		if err != nil {
			return nil, err
		}

		s.log.Warn("Booking disputed",
			zap.String("booking_id", b.ID.String()),
			zap.String("actor_id", actor.ID.String()),
			zap.String("reason", req.Reason),
		)
		for _, uid := range []uuid.UUID{disputed.SenderID, disputed.ReceiverID} {
			if uid != actor.ID {
				s.notify(ctx, uid, "booking.disputed", disputed, "A dispute was opened on this booking", PriorityHigh)
			}
		}
		return disputed, nil
	})
}

func (s *bookingService) ResolveDispute(ctx context.Context, actor Actor, bookingID string, req *request.ResolveDisputeRequest) (*response.PaymentStatusResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	resolved, err := s.withLockEntity(ctx, bookingID, func(b *entity.Booking) (*entity.Booking, error) {
		role, err := roleFor(b, actor, entity.ActionResolveDispute)
		if err != nil {
			return nil, err
		}
		if err := s.guard(b, entity.ActionResolveDispute, role); err != nil {
			return nil, err
		}

		escrow, err := s.store.Repo().Escrow.FindByBookingID(ctx, b.ID)
		if err != nil {
			return nil, utils.ErrInternal("failed to get escrow", err)
		}
		if escrow == nil {
			return nil, errEscrowNotFound()
		}
		if !escrow.IsHolding() {
			return nil, errEscrowNotHolding(escrow.Status)
		}

		notes := "dispute resolved: " + req.Resolution
		if req.Notes != "" {
			notes += ": " + req.Notes
		}

		var extra func(repo *repository.Repository, n *entity.Booking) error
		switch req.Resolution {
		case "release":
			_, tr, err := s.payout(ctx, b)
			if err != nil {
				return nil, err
			}
			extra = func(repo *repository.Repository, n *entity.Booking) error {
				return s.recordPayout(ctx, repo, n, escrow, tr, notes)
			}
		case "refund":
			rf, err := s.payment.RefundPayment(ctx, b, escrow.AmountHeld)
			if err != nil {
				return nil, err
			}
			notes += " (refund " + rf.ID + ")"
			extra = func(repo *repository.Repository, n *entity.Booking) error {
				_, err := s.escrow.Refund(ctx, repo, escrow.ID, notes)
				return err
			}
		default:
			extra = func(repo *repository.Repository, n *entity.Booking) error {
				_, err := s.escrow.MarkDisputed(ctx, repo, escrow.ID, notes)
				return err
			}
		}

		out, err := s.commit(ctx, b, entity.ActionResolveDispute, &actor.ID, role, nil, extra)
		if err != nil {
			return nil, err
		}

		s.log.Info("Dispute resolved",
			zap.String("booking_id", b.ID.String()),
			zap.String("resolution", req.Resolution),
			zap.String("admin_id", actor.ID.String()),
		)
		s.notify(ctx, out.SenderID, "booking.dispute_resolved", out, notes, PriorityHigh)
		s.notify(ctx, out.ReceiverID, "booking.dispute_resolved", out, notes, PriorityHigh)
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return s.paymentStatus(ctx, resolved)
}

// ==================== PROVIDER SYNC ====================

func (s *bookingService) Reconcile(ctx context.Context, req ReconcileRequest) error {
	_, err := s.withLockEntity(ctx, req.BookingID.String(), func(b *entity.Booking) (*entity.Booking, error) {
		log := s.log.With(zap.String("booking_id", b.ID.String()), zap.String("operation", req.Operation))

		if req.Operation != ReconcileAuthorize {
			authID := req.AuthorizationID
			if authID == "" && b.PaymentAuthorizationID != nil {
				authID = *b.PaymentAuthorizationID
			}
			if authID == "" {
				log.Warn("Nothing to reconcile, booking has no authorization")
				return b, nil
			}
			auth, err := s.payment.GetAuthorization(ctx, authID)
			if err != nil {
				return nil, err
			}
			return s.applyAuthorization(ctx, b, auth)
		}

		// A stuck tentative accept is reverted first.
		if b.Status == entity.BookingStatusAccepted && b.PaymentAuthorizationID == nil {
			log.Warn("Reverting accept left without authorization")
			s.revertAccept(ctx, b)
		}
		if req.Amount == 0 {
			return b, nil
		}

		// Replaying the create with its original key returns the authorization the
		// provider may have made; it is released since the booking never recorded it.
		ghost := *b
		ghost.StatusVersion = req.Version
		auth, err := s.payment.CreateAuthorization(ctx, &ghost, req.DestinationAccountID, req.Amount)
		if err != nil {
			return nil, err
		}
		if b.PaymentAuthorizationID != nil && *b.PaymentAuthorizationID == auth.ID {
			return b, nil
		}
		if auth.Status != authStatusCanceled {
			ghost.PaymentAuthorizationID = &auth.ID
			if _, err := s.payment.CancelAuthorization(ctx, &ghost, "abandoned"); err != nil {
				return nil, err
			}
			log.Info("Released orphan authorization", zap.String("authorization_id", auth.ID))
		}
		return b, nil
	})
	return err
}

func (s *bookingService) ApplyAuthorizationUpdate(ctx context.Context, auth *payment.Authorization) error {
	b, err := s.store.Repo().Booking.FindByAuthorizationID(ctx, auth.ID)
	if err != nil {
		return fmt.Errorf("find booking by authorization: %w", err)
	}
	if b == nil {
		s.log.Info("Authorization update for unknown booking", zap.String("authorization_id", auth.ID))
		return nil
	}

	_, err = s.withLockEntity(ctx, b.ID.String(), func(b *entity.Booking) (*entity.Booking, error) {
		return s.applyAuthorization(ctx, b, auth)
	})
	return err
}

// applyAuthorization moves the booking to where the provider says the money is.
func (s *bookingService) applyAuthorization(ctx context.Context, b *entity.Booking, auth *payment.Authorization) (*entity.Booking, error) {
	if b.PaymentAuthorizationID == nil || *b.PaymentAuthorizationID != auth.ID {
		return b, nil
	}

	switch {
	case b.Status == entity.BookingStatusPaymentAuthorized && auth.Status == authStatusRequiresCapture:
		confirmed, err := s.commit(ctx, b, entity.ActionConfirmPayment, nil, entity.ActorSystem, func(n *entity.Booking) {
			n.PaymentStatus = &auth.Status
		}, nil)
		if err != nil {
			return nil, err
		}
		return s.afterConfirm(ctx, confirmed), nil

	case b.Status == entity.BookingStatusPaymentConfirmed && auth.Status == authStatusSucceeded:
		return s.finishCapture(ctx, b, auth, nil, entity.ActorSystem)
	}

	return s.syncPaymentStatus(ctx, b, auth)
}

func (s *bookingService) syncPaymentStatus(ctx context.Context, b *entity.Booking, auth *payment.Authorization) (*entity.Booking, error) {
	if b.PaymentStatus != nil {
		if *b.PaymentStatus == auth.Status || authStatusRank[auth.Status] < authStatusRank[*b.PaymentStatus] {
			return b, nil
		}
	}
	if err := s.store.Repo().Booking.UpdatePaymentStatus(ctx, auth.ID, auth.Status); err != nil {
		return nil, utils.ErrInternal("failed to update payment status", err)
	}
	status := auth.Status
	b.PaymentStatus = &status
	return b, nil
}

// ==================== HELPERS ====================

// withLock runs fn on a fresh copy of the booking while holding its lock.
func (s *bookingService) withLock(ctx context.Context, bookingID string, fn func(b *entity.Booking) (*entity.Booking, error)) (*response.BookingResponse, error) {
	b, err := s.withLockEntity(ctx, bookingID, fn)
	if err != nil {
		return nil, err
	}
	resp := response.BookingToResponse(b)
	return &resp, nil
}

func (s *bookingService) withLockEntity(ctx context.Context, bookingID string, fn func(b *entity.Booking) (*entity.Booking, error)) (*entity.Booking, error) {
	id, err := parseID(bookingID, "booking_id")
	if err != nil {
		return nil, err
	}

	release, err := s.deps.lockBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	b, err := s.store.Repo().Booking.FindByID(ctx, id)
	if err != nil {
		return nil, utils.ErrInternal("failed to get booking", err)
	}
	if b == nil {
		return nil, utils.ErrNotFound("booking")
	}
	return fn(b)
}

func (s *bookingService) loadVisible(ctx context.Context, actor Actor, bookingID string) (*entity.Booking, error) {
	id, err := parseID(bookingID, "booking_id")
	if err != nil {
		return nil, err
	}
	b, err := s.store.Repo().Booking.FindByID(ctx, id)
	if err != nil {
		return nil, utils.ErrInternal("failed to get booking", err)
	}
	if b == nil {
		return nil, utils.ErrNotFound("booking")
	}
	if !b.IsParty(actor.ID) && !actor.Admin {
		return nil, utils.ErrForbidden("you are not a party of this booking")
	}
	return b, nil
}

// roleFor picks the role under which actor may perform action on b. A non-party
// non-admin is refused outright; otherwise the guard judges the returned role.
func roleFor(b *entity.Booking, actor Actor, action entity.BookingAction) (entity.ActorRole, error) {
	var roles []entity.ActorRole
	if actor.ID == b.SenderID {
		roles = append(roles, entity.ActorSender)
	}
	if actor.ID == b.ReceiverID {
		roles = append(roles, entity.ActorReceiver)
	}
	if actor.Admin {
		roles = append(roles, entity.ActorAdmin)
	}
	if len(roles) == 0 {
		metrics.BookingTransitionRejections.WithLabelValues(string(action), string(utils.CodeForbiddenActor)).Inc()
		return "", utils.ErrForbidden("you are not a party of this booking")
	}
	for _, r := range roles {
		if entity.ActorAllowed(action, r) {
			return r, nil
		}
	}
	return roles[0], nil
}

// guard checks the transition table before anything is touched.
func (s *bookingService) guard(b *entity.Booking, action entity.BookingAction, role entity.ActorRole) error {
	if !entity.CanTransition(action, b.Status) {
		return s.reject(action, utils.ErrInvalidTransition(string(b.Status), string(action)))
	}
	if !entity.ActorAllowed(action, role) {
		return s.reject(action, utils.ErrForbidden(fmt.Sprintf("%s cannot %s this booking", role, action)))
	}
	return nil
}

func (s *bookingService) reject(action entity.BookingAction, err error) error {
	code := string(utils.CodeInternal)
	if appErr, ok := utils.AsAppError(err); ok {
		code = string(appErr.Code)
	}
	metrics.BookingTransitionRejections.WithLabelValues(string(action), code).Inc()
	return err
}

// commit applies action to a copy of b with a compare-and-swap on (status, version),
// appends the history row and runs extra in the same transaction. b is never modified.
func (s *bookingService) commit(
	ctx context.Context,
	b *entity.Booking,
	action entity.BookingAction,
	actorID *uuid.UUID,
	role entity.ActorRole,
	mutate func(n *entity.Booking),
	extra func(repo *repository.Repository, n *entity.Booking) error,
) (*entity.Booking, error) {
	t, ok := entity.BookingTransitions[action]
	if !ok {
		return nil, utils.ErrInternal("unknown booking action", fmt.Errorf("action %s", action))
	}

	now := s.deps.now()
	next := *b
	next.Status = t.To
	next.Touch(now)
	if mutate != nil {
		mutate(&next)
	}

	err := s.store.WithinTx(ctx, func(repo *repository.Repository) error {
		if err := repo.Booking.UpdateTransition(ctx, &next, b.Status); err != nil {
			return err
		}
		if err := repo.Booking.AppendEvent(ctx, &entity.BookingEvent{
			BaseSimple: entity.BaseSimple{ID: uuid.New(), CreatedAt: now},
			BookingID:  b.ID,
			Action:     action,
			FromStatus: b.Status,
			ToStatus:   next.Status,
			ActorID:    actorID,
			ActorRole:  role,
		}); err != nil {
			return err
		}
		if extra != nil {
			return extra(repo, &next)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, s.reject(action, utils.ErrConcurrent())
		}
		if appErr, ok := utils.AsAppError(err); ok {
			return nil, appErr
		}
		s.log.Error("Booking transition failed",
			zap.String("booking_id", b.ID.String()),
			zap.String("action", string(action)),
			zap.Error(err),
		)
		return nil, utils.ErrInternal("failed to update booking", err)
	}

	metrics.BookingTransitions.WithLabelValues(string(action), string(b.Status), string(next.Status)).Inc()
	s.log.Info("Booking transitioned",
		zap.String("booking_id", b.ID.String()),
		zap.String("action", string(action)),
		zap.String("from", string(b.Status)),
		zap.String("to", string(next.Status)),
		zap.String("actor_role", string(role)),
	)
	s.publish(ctx, &next, b.Status, action, actorID, role)
	return &next, nil
}

// publish emits the domain event; a broker failure never undoes a committed transition.
func (s *bookingService) publish(ctx context.Context, b *entity.Booking, from entity.BookingStatus, action entity.BookingAction, actorID *uuid.UUID, role entity.ActorRole) {
	evt := events.BookingTransitioned{
		Type:       events.TypeBookingTransitioned,
		BookingID:  b.ID.String(),
		Reference:  b.Reference,
		TripID:     b.TripID.String(),
		Action:     string(action),
		FromStatus: string(from),
		ToStatus:   string(b.Status),
		ActorRole:  string(role),
		OccurredAt: b.UpdatedAt,
	}
	if actorID != nil {
		evt.ActorID = actorID.String()
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.log.Warn("Failed to publish booking event",
			zap.String("booking_id", b.ID.String()),
			zap.String("action", string(action)),
			zap.Error(err),
		)
	}
}

func (s *bookingService) notify(ctx context.Context, userID uuid.UUID, eventType string, b *entity.Booking, message, priority string) {
	if s.jobs == nil {
		return
	}
	err := s.jobs.EnqueueNotification(ctx, NotificationRequest{
		UserID:    userID,
		EventType: eventType,
		Vars: NotificationVars{
			BookingID: b.ID.String(),
			Reference: b.Reference,
			Status:    string(b.Status),
			Message:   message,
		},
		Options: NotificationOptions{
			Channels: []string{ChannelInApp},
			Priority: priority,
		},
	})
	if err != nil {
		s.log.Warn("Failed to enqueue notification",
			zap.String("booking_id", b.ID.String()),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}

func (s *bookingService) enqueueReconcile(ctx context.Context, req ReconcileRequest) {
	if s.jobs == nil {
		return
	}
	if err := s.jobs.EnqueueReconciliation(ctx, req); err != nil {
		s.log.Error("Failed to enqueue reconciliation",
			zap.String("booking_id", req.BookingID.String()),
			zap.String("operation", req.Operation),
			zap.Error(err),
		)
	}
}

func (s *bookingService) scheduleSettlement(ctx context.Context, bookingID uuid.UUID, at time.Time) {
	if s.jobs == nil {
		return
	}
	if err := s.jobs.ScheduleSettlement(ctx, bookingID, at); err != nil {
		s.log.Error("Failed to schedule settlement",
			zap.String("booking_id", bookingID.String()),
			zap.Error(err),
		)
	}
}
