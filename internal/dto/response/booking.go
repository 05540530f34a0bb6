package response

import (
	"time"

	"parcel-share/internal/data/entity"
	"parcel-share/pkg/utils"
)

// Amounts are decimal major units; the store keeps minor units.
type BookingResponse struct {
	ID                     string                   `json:"id"`
	Reference              int64                    `json:"reference"`
	TripID                 string                   `json:"trip_id"`
	SenderID               string                   `json:"sender_id"`
	ReceiverID             string                   `json:"receiver_id"`
	WeightKg               float64                  `json:"weight_kg"`
	Description            *string                  `json:"description,omitempty"`
	ProposedPrice          float64                  `json:"proposed_price"`
	FinalPrice             *float64                 `json:"final_price,omitempty"`
	CommissionRate         float64                  `json:"commission_rate"`
	CommissionAmount       float64                  `json:"commission_amount"`
	TransferAmount         float64                  `json:"transfer_amount"`
	Currency               string                   `json:"currency"`
	Status                 entity.BookingStatus     `json:"status"`
	PaymentAuthorizationID *string                  `json:"payment_authorization_id,omitempty"`
	PaymentStatus          *string                  `json:"payment_status,omitempty"`
	RejectionReason        *string                  `json:"rejection_reason,omitempty"`
	CancellationType       *entity.CancellationType `json:"cancellation_type,omitempty"`
	RefundPercent          *float64                 `json:"refund_percent,omitempty"`
	PickupDate             *time.Time               `json:"pickup_date,omitempty"`
	DeliveryConfirmedAt    *time.Time               `json:"delivery_confirmed_at,omitempty"`
	CompletedAt            *time.Time               `json:"completed_at,omitempty"`
	CancelledAt            *time.Time               `json:"cancelled_at,omitempty"`
	CreatedAt              time.Time                `json:"created_at"`
	UpdatedAt              time.Time                `json:"updated_at"`
}

func BookingToResponse(b *entity.Booking) BookingResponse {
	resp := BookingResponse{
		ID:                     b.ID.String(),
		Reference:              b.Reference,
		TripID:                 b.TripID.String(),
		SenderID:               b.SenderID.String(),
		ReceiverID:             b.ReceiverID.String(),
		WeightKg:               b.WeightKg,
		Description:            b.Description,
		ProposedPrice:          utils.FromCents(b.ProposedPrice),
		CommissionRate:         b.CommissionRate,
		CommissionAmount:       utils.FromCents(b.CommissionAmount),
		TransferAmount:         utils.FromCents(b.TransferAmount()),
		Currency:               b.Currency,
		Status:                 b.Status,
		PaymentAuthorizationID: b.PaymentAuthorizationID,
		PaymentStatus:          b.PaymentStatus,
		RejectionReason:        b.RejectionReason,
		CancellationType:       b.CancellationType,
		RefundPercent:          b.RefundPercent,
		PickupDate:             b.PickupDate,
		DeliveryConfirmedAt:    b.DeliveryConfirmedAt,
		CompletedAt:            b.CompletedAt,
		CancelledAt:            b.CancelledAt,
		CreatedAt:              b.CreatedAt,
		UpdatedAt:              b.UpdatedAt,
	}
	if b.FinalPrice != nil {
		fp := utils.FromCents(*b.FinalPrice)
		resp.FinalPrice = &fp
	}
	return resp
}

type EscrowResponse struct {
	ID             string              `json:"id"`
	AmountHeld     float64             `json:"amount_held"`
	AmountReleased float64             `json:"amount_released"`
	Currency       string              `json:"currency"`
	Status         entity.EscrowStatus `json:"status"`
	HeldReason     string              `json:"held_reason"`
	ReleasedAt     *time.Time          `json:"released_at,omitempty"`
	ReleaseNotes   *string             `json:"release_notes,omitempty"`
}

func EscrowToResponse(e *entity.EscrowAccount) *EscrowResponse {
	if e == nil {
		return nil
	}
	return &EscrowResponse{
		ID:             e.ID.String(),
		AmountHeld:     utils.FromCents(e.AmountHeld),
		AmountReleased: utils.FromCents(e.AmountReleased),
		Currency:       e.Currency,
		Status:         e.Status,
		HeldReason:     e.HeldReason,
		ReleasedAt:     e.ReleasedAt,
		ReleaseNotes:   e.ReleaseNotes,
	}
}

type TransactionResponse struct {
	ID                string                 `json:"id"`
	Type              entity.TransactionType `json:"type"`
	Amount            float64                `json:"amount"`
	Currency          string                 `json:"currency"`
	ProviderReference *string                `json:"provider_reference,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
}

type PaymentStatusResponse struct {
	BookingID              string                `json:"booking_id"`
	Status                 entity.BookingStatus  `json:"status"`
	PaymentAuthorizationID *string               `json:"payment_authorization_id,omitempty"`
	PaymentStatus          *string               `json:"payment_status,omitempty"`
	Escrow                 *EscrowResponse       `json:"escrow,omitempty"`
	Transactions           []TransactionResponse `json:"transactions"`
}

type CodeResponse struct {
	BookingID string          `json:"booking_id"`
	CodeType  entity.CodeType `json:"code_type"`
	Code      string          `json:"code"`
	ExpiresAt time.Time       `json:"expires_at"`
}

type CancellationEligibilityResponse struct {
	BookingID          string                      `json:"booking_id"`
	Allowed            bool                        `json:"allowed"`
	DenialReason       string                      `json:"denial_reason,omitempty"`
	CancellationType   entity.CancellationType     `json:"cancellation_type"`
	Severity           entity.CancellationSeverity `json:"severity"`
	HoursToDeparture   float64                     `json:"hours_to_departure"`
	RefundPercent      float64                     `json:"refund_percent"`
	FeesDeducted       bool                        `json:"fees_deducted"`
	RefundAmount       float64                     `json:"refund_amount"`
	PriorCancellations int                         `json:"prior_cancellations"`
}

type CancellationAttemptResponse struct {
	ID            string                      `json:"id"`
	ActorID       string                      `json:"actor_id"`
	BookingID     string                      `json:"booking_id"`
	TripID        string                      `json:"trip_id"`
	AttemptType   entity.CancellationType     `json:"attempt_type"`
	Severity      entity.CancellationSeverity `json:"severity"`
	Allowed       bool                        `json:"allowed"`
	DenialReason  *string                     `json:"denial_reason,omitempty"`
	RefundPercent float64                     `json:"refund_percent"`
	CreatedAt     time.Time                   `json:"created_at"`
}

func CancellationAttemptToResponse(a *entity.CancellationAttempt) CancellationAttemptResponse {
	return CancellationAttemptResponse{
		ID:            a.ID.String(),
		ActorID:       a.ActorID.String(),
		BookingID:     a.BookingID.String(),
		TripID:        a.TripID.String(),
		AttemptType:   a.AttemptType,
		Severity:      a.Severity,
		Allowed:       a.Allowed,
		DenialReason:  a.DenialReason,
		RefundPercent: a.RefundPercent,
		CreatedAt:     a.CreatedAt,
	}
}
