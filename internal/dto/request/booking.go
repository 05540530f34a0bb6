package request

type CreateBookingRequest struct {
	TripID        string  `json:"trip_id" validate:"required,uuid"`
	WeightKg      float64 `json:"weight_kg" validate:"required,gt=0"`
	ProposedPrice float64 `json:"proposed_price" validate:"required,money"`
	Description   *string `json:"description,omitempty" validate:"omitempty,max=1000"`
}

// AcceptBookingRequest may carry a negotiated price; the proposed price is used otherwise.
type AcceptBookingRequest struct {
	FinalPrice *float64 `json:"final_price,omitempty" validate:"omitempty,money"`
}

type RejectBookingRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type ConfirmPaymentRequest struct {
	PaymentMethodID string `json:"payment_method_id" validate:"required"`
}

type ValidateCodeRequest struct {
	Code string `json:"code" validate:"required,numeric,min=4,max=12"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type DisputeRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

// RegenerateCodeRequest carries the reason stored in the audit log.
type RegenerateCodeRequest struct {
	Reason string `json:"reason" validate:"required,oneof=lost expired exhausted other"`
}

// ResolveDisputeRequest is the admin decision on a disputed booking: pay the carrier,
// refund the sender, or freeze the funds for the provider's dispute process.
type ResolveDisputeRequest struct {
	Resolution string `json:"resolution" validate:"required,oneof=release refund freeze"`
	Notes      string `json:"notes" validate:"max=1000"`
}
