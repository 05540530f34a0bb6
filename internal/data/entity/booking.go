package entity

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusPending           BookingStatus = "pending"
	BookingStatusAccepted          BookingStatus = "accepted"
	BookingStatusPaymentAuthorized BookingStatus = "payment_authorized"
	BookingStatusPaymentConfirmed  BookingStatus = "payment_confirmed"
	BookingStatusPaid              BookingStatus = "paid"
	BookingStatusInTransit         BookingStatus = "in_transit"
	BookingStatusDelivered         BookingStatus = "delivered"
	BookingStatusCompleted         BookingStatus = "completed"
	BookingStatusRejected          BookingStatus = "rejected"
	BookingStatusCancelled         BookingStatus = "cancelled"
	BookingStatusDisputed          BookingStatus = "disputed"
)

// progress orders the forward path; terminal diversions are not ranked.
var progress = map[BookingStatus]int{
	BookingStatusPending:           0,
	BookingStatusAccepted:          1,
	BookingStatusPaymentAuthorized: 2,
	BookingStatusPaymentConfirmed:  3,
	BookingStatusPaid:              4,
	BookingStatusInTransit:         5,
	BookingStatusDelivered:         6,
	BookingStatusCompleted:         7,
	BookingStatusDisputed:          7,
}

// AtLeast reports whether s is on the forward path at or beyond other.
func (s BookingStatus) AtLeast(other BookingStatus) bool {
	a, ok := progress[s]
	if !ok {
		return false
	}
	b, ok := progress[other]
	if !ok {
		return false
	}
	return a >= b
}

func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingStatusCompleted, BookingStatusRejected, BookingStatusCancelled, BookingStatusDisputed:
		return true
	}
	return false
}

// IsActive reports whether the booking still occupies the trip.
func (s BookingStatus) IsActive() bool {
	switch s {
	case BookingStatusRejected, BookingStatusCancelled, BookingStatusCompleted, BookingStatusDisputed, BookingStatusDelivered:
		return false
	}
	return true
}

type CancellationType string

const (
	CancellationTypeEarly  CancellationType = "early_cancel"
	CancellationTypeLate   CancellationType = "late_cancel"
	CancellationTypeNoShow CancellationType = "no_show"
)

type Booking struct {
	Base
	Reference              int64             `db:"reference"`
	TripID                 uuid.UUID         `db:"trip_id"`
	SenderID               uuid.UUID         `db:"sender_id"`
	ReceiverID             uuid.UUID         `db:"receiver_id"`
	WeightKg               float64           `db:"weight_kg"`
	Description            *string           `db:"description"`
	ProposedPrice          int64             `db:"proposed_price"` // cents
	FinalPrice             *int64            `db:"final_price"`    // cents
	CommissionRate         float64           `db:"commission_rate"`
	CommissionAmount       int64             `db:"commission_amount"` // cents
	Currency               string            `db:"currency"`
	Status                 BookingStatus     `db:"status"`
	StatusVersion          int               `db:"status_version"`
	PaymentAuthorizationID *string           `db:"payment_authorization_id"`
	PaymentStatus          *string           `db:"payment_status"`
	RejectionReason        *string           `db:"rejection_reason"`
	CancellationType       *CancellationType `db:"cancellation_type"`
	RefundPercent          *float64          `db:"refund_percent"`
	PickupDate             *time.Time        `db:"pickup_date"`
	DeliveryConfirmedAt    *time.Time        `db:"delivery_confirmed_at"`
	CompletedAt            *time.Time        `db:"completed_at"`
	CancelledAt            *time.Time        `db:"cancelled_at"`
}

// TransferAmount is what the carrier receives: final price minus the commission
// fixed at acceptance. Zero before acceptance.
func (b *Booking) TransferAmount() int64 {
	if b.FinalPrice == nil {
		return 0
	}
	return *b.FinalPrice - b.CommissionAmount
}

// IsParty reports whether userID is the sender or the receiver.
func (b *Booking) IsParty(userID uuid.UUID) bool {
	return b.SenderID == userID || b.ReceiverID == userID
}

// BookingEvent is one row of the booking state history.
type BookingEvent struct {
	BaseSimple
	BookingID  uuid.UUID     `db:"booking_id"`
	Action     BookingAction `db:"action"`
	FromStatus BookingStatus `db:"from_status"`
	ToStatus   BookingStatus `db:"to_status"`
	ActorID    *uuid.UUID    `db:"actor_id"`
	ActorRole  ActorRole     `db:"actor_role"`
}
